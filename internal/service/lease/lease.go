package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Keeper hands out per-campaign tick leases backed by Redis so two engine
// instances never process the same campaign in overlapping passes.
type Keeper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKeeper constructs a lease keeper.
func NewKeeper(client *redis.Client, ttl time.Duration) *Keeper {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Keeper{client: client, ttl: ttl}
}

// Acquire attempts to take the lease for the campaign. The returned token
// must be passed to Release; an empty ok result means another instance holds
// the lease.
func (k *Keeper) Acquire(ctx context.Context, campaignID uuid.UUID) (string, bool, error) {
	token := uuid.NewString()
	ok, err := k.client.SetNX(ctx, k.key(campaignID), token, k.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lease if the token still owns it. A lease that expired
// and was re-acquired elsewhere is left alone.
func (k *Keeper) Release(ctx context.Context, campaignID uuid.UUID, token string) error {
	script := redis.NewScript(`
local key = KEYS[1]
if redis.call('GET', key) == ARGV[1] then
  return redis.call('DEL', key)
end
return 0
`)
	if _, err := script.Run(ctx, k.client, []string{k.key(campaignID)}, token).Int(); err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

func (k *Keeper) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("voicecampaign:campaign:%s:lease", campaignID.String())
}
