package telephony

import (
	"context"
	"errors"
)

// ErrSessionExists reports that a signaling session with the requested name
// already exists. Callers treat it as success: session creation is idempotent
// per attempt name.
var ErrSessionExists = errors.New("session already exists")

// DispatchRequest carries everything the AI agent needs to join a session
// and run the campaign script.
type DispatchRequest struct {
	SessionName string
	AgentID     string
	CampaignID  string
	Prompt      string
	ContactName string
	PhoneNumber string
	CallerID    string
	TrunkID     string
}

// BridgeRequest asks the provider to place the outbound call leg into the
// session through the resolved trunk.
type BridgeRequest struct {
	SessionName string
	TrunkID     string
	PhoneNumber string
	CallerID    string
}

// BridgeInfo identifies the live call leg created by the provider.
type BridgeInfo struct {
	ParticipantID  string
	ProviderCallID string
}

// Provider abstracts the telephony signaling capability: session ("room")
// creation, agent dispatch and phone-bridge participant creation.
type Provider interface {
	// CreateSession creates the session, treating "already exists" as
	// success.
	CreateSession(ctx context.Context, name string, metadata map[string]string) error

	// DispatchAgent places the AI agent into the session and returns the
	// provider dispatch id. Implementations retry once over a fallback
	// transport with identical semantics before failing.
	DispatchAgent(ctx context.Context, req DispatchRequest) (string, error)

	// CreateBridgeParticipant dials the contact and bridges the call leg
	// into the session.
	CreateBridgeParticipant(ctx context.Context, req BridgeRequest) (BridgeInfo, error)
}
