package queue

import (
	"time"

	"github.com/google/uuid"
)

// AttemptEvent is published on every attempt status transition so downstream
// consumers (CRM sync, reporting) can follow call progress without polling.
type AttemptEvent struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	CampaignID     uuid.UUID `json:"campaign_id"`
	AgentID        string    `json:"agent_id"`
	PhoneNumber    string    `json:"phone_number"`
	ContactName    string    `json:"contact_name"`
	SourceRef      string    `json:"source_ref"`
	Status         string    `json:"status"`
	SessionName    string    `json:"session_name,omitempty"`
	ProviderCallID string    `json:"provider_call_id,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
