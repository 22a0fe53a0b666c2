package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voicecampaign/internal/domain"
	apperrors "github.com/acme/voicecampaign/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
	// ErrInvalidTransition indicates a status guard rejected an update.
	ErrInvalidTransition = apperrors.ErrInvalidTransition
)

// CampaignRepository manages campaign persistence. Counter mutations are
// single read-modify-write statements so that the daily cap stays exact even
// when the reset sweep runs concurrently in the same tick.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error)

	// ListRunningDue returns running campaigns whose next_call_at is not in
	// the future, ordered by next_call_at.
	ListRunningDue(ctx context.Context, now time.Time, limit int) ([]*domain.Campaign, error)

	// Guarded status transitions. Each returns ErrInvalidTransition when the
	// campaign exists but is not in an allowed source state.
	Start(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Campaign, error)
	Pause(ctx context.Context, id uuid.UUID, reason string) error
	Complete(ctx context.Context, id uuid.UUID, now time.Time) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error

	// RecordDial atomically increments total_dials and current_daily_calls
	// and returns the fresh campaign row.
	RecordDial(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	RecordPickup(ctx context.Context, id uuid.UUID) error

	// ResetDailyCounters zeroes current_daily_calls for every running campaign
	// whose last reset predates the current local day, in one statement.
	// Returns the number of campaigns reset.
	ResetDailyCounters(ctx context.Context, now time.Time) (int64, error)

	SetNextCall(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ContactRepository stores inline campaign contacts. Listing preserves
// insertion order.
type ContactRepository interface {
	BulkInsert(ctx context.Context, campaignID uuid.UUID, contacts []ContactRecord) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]ContactRecord, error)
}

// RouteBindingRepository reads agent-to-trunk bindings. Returns ErrNotFound
// when no route is bound to the agent.
type RouteBindingRepository interface {
	Get(ctx context.Context, agentID string) (*domain.RouteBinding, error)
}

// OutcomeTallyRepository keeps the per-campaign outcome histogram.
type OutcomeTallyRepository interface {
	ApplyDelta(ctx context.Context, campaignID uuid.UUID, outcome string, delta int64) error
	List(ctx context.Context, campaignID uuid.UUID) ([]domain.OutcomeTally, error)
}

// AttemptStore persists call attempts. Terminal attempts are never updated.
type AttemptStore interface {
	Insert(ctx context.Context, attempt *domain.CallAttempt) error
	MarkCalling(ctx context.Context, campaignID, attemptID uuid.UUID, sessionName, providerCallID string) error
	MarkFailed(ctx context.Context, campaignID, attemptID uuid.UUID, notes string, completedAt time.Time) error
	MarkCompleted(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string, completedAt time.Time) error
	SetOutcome(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string) error
	Get(ctx context.Context, campaignID, attemptID uuid.UUID) (*domain.CallAttempt, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallAttempt, []byte, error)

	// AttemptedRefs returns the latest attempt status per contact source ref,
	// used to skip contacts already processed in earlier passes.
	AttemptedRefs(ctx context.Context, campaignID uuid.UUID) (map[string]domain.AttemptStatus, error)
}

// ContactRecord is the storage representation of an inline contact.
type ContactRecord struct {
	ID          uuid.UUID
	CampaignID  uuid.UUID
	Name        string
	PhoneNumber string
	SourceRef   string
	DoNotCall   bool
	Position    int
	CreatedAt   time.Time
}
