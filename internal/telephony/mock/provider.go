package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voicecampaign/internal/telephony"
)

// Provider simulates the signaling capability for local development and
// environments without a real provider. Sessions are tracked so re-creating
// one with the same name behaves like the real idempotent API.
type Provider struct {
	mu       sync.Mutex
	sessions map[string]struct{}
	latency  time.Duration
}

// NewProvider constructs a mock provider.
func NewProvider(latency time.Duration) *Provider {
	return &Provider{
		sessions: make(map[string]struct{}),
		latency:  latency,
	}
}

// CreateSession registers the session name, succeeding on repeats.
func (p *Provider) CreateSession(ctx context.Context, name string, metadata map[string]string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[name] = struct{}{}
	return nil
}

// DispatchAgent returns a synthetic dispatch id.
func (p *Provider) DispatchAgent(ctx context.Context, req telephony.DispatchRequest) (string, error) {
	if err := p.sleep(ctx); err != nil {
		return "", err
	}
	return "dispatch-" + uuid.NewString(), nil
}

// CreateBridgeParticipant returns synthetic call leg identifiers.
func (p *Provider) CreateBridgeParticipant(ctx context.Context, req telephony.BridgeRequest) (telephony.BridgeInfo, error) {
	if err := p.sleep(ctx); err != nil {
		return telephony.BridgeInfo{}, err
	}
	return telephony.BridgeInfo{
		ParticipantID:  "participant-" + uuid.NewString(),
		ProviderCallID: "call-" + uuid.NewString(),
	}, nil
}

func (p *Provider) sleep(ctx context.Context) error {
	if p.latency <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.latency):
		return nil
	}
}
