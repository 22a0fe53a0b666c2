package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/repository"
)

// RouteBindingRepository reads agent route bindings. The engine never writes
// this table; provisioning is an external concern.
type RouteBindingRepository struct {
	db *sqlx.DB
}

// NewRouteBindingRepository constructs the repository.
func NewRouteBindingRepository(db *sqlx.DB) *RouteBindingRepository {
	return &RouteBindingRepository{db: db}
}

// Get fetches the route binding for an agent.
func (r *RouteBindingRepository) Get(ctx context.Context, agentID string) (*domain.RouteBinding, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT agent_id, trunk_id, caller_id, created_at
		FROM agent_routes WHERE agent_id = $1`, agentID)

	var rec struct {
		AgentID   string    `db:"agent_id"`
		TrunkID   string    `db:"trunk_id"`
		CallerID  string    `db:"caller_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("route repo: get: %w", err)
	}

	return &domain.RouteBinding{
		AgentID:   rec.AgentID,
		TrunkID:   rec.TrunkID,
		CallerID:  rec.CallerID,
		CreatedAt: rec.CreatedAt,
	}, nil
}
