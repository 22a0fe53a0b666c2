package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates lifecycle stages for a call attempt.
type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusCalling   AttemptStatus = "calling"
	AttemptStatusCompleted AttemptStatus = "completed"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// Terminal reports whether the status is final. A terminal attempt is
// immutable.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusFailed
}

// CallAttempt records one placement of one call to one contact. Notes carries
// the failure reason when the attempt ends failed.
type CallAttempt struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	ContactName    string
	SourceRef      string
	PhoneNumber    string
	Status         AttemptStatus
	Outcome        *string
	SessionName    string
	ProviderCallID string
	Notes          string
	StartedAt      time.Time
	CompletedAt    *time.Time
}
