package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/repository"
)

// AttemptStore persists call attempts in Scylla, partitioned by campaign.
// Terminal attempts are immutable: status updates are lightweight
// transactions conditioned on the current status.
type AttemptStore struct {
	session *gocql.Session
}

// NewAttemptStore creates a new attempt store.
func NewAttemptStore(session *gocql.Session) *AttemptStore {
	return &AttemptStore{session: session}
}

// Insert writes a new attempt record.
func (s *AttemptStore) Insert(ctx context.Context, attempt *domain.CallAttempt) error {
	if err := s.session.Query(`INSERT INTO attempts_by_campaign
		(campaign_id, attempt_id, contact_name, source_ref, phone_number, status, outcome, session_name, provider_call_id, notes, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.CampaignID.String(), attempt.ID.String(), attempt.ContactName, attempt.SourceRef,
		attempt.PhoneNumber, string(attempt.Status), attempt.Outcome, attempt.SessionName,
		attempt.ProviderCallID, attempt.Notes, attempt.StartedAt, attempt.CompletedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: insert: %w", err)
	}
	return nil
}

// MarkCalling transitions a pending attempt to calling and records the
// signaling session and provider call identifiers.
func (s *AttemptStore) MarkCalling(ctx context.Context, campaignID, attemptID uuid.UUID, sessionName, providerCallID string) error {
	applied, err := s.session.Query(`UPDATE attempts_by_campaign
		SET status = ?, session_name = ?, provider_call_id = ?
		WHERE campaign_id = ? AND attempt_id = ?
		IF status = ?`,
		string(domain.AttemptStatusCalling), sessionName, providerCallID,
		campaignID.String(), attemptID.String(), string(domain.AttemptStatusPending),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("attempt store: mark calling: %w", err)
	}
	if !applied {
		return repository.ErrConflict
	}
	return nil
}

// MarkFailed moves a non-terminal attempt to failed, carrying the reason in
// notes.
func (s *AttemptStore) MarkFailed(ctx context.Context, campaignID, attemptID uuid.UUID, notes string, completedAt time.Time) error {
	return s.terminate(ctx, campaignID, attemptID, domain.AttemptStatusFailed, nil, notes, completedAt)
}

// MarkCompleted moves a non-terminal attempt to completed with an outcome.
func (s *AttemptStore) MarkCompleted(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string, completedAt time.Time) error {
	return s.terminate(ctx, campaignID, attemptID, domain.AttemptStatusCompleted, &outcome, "", completedAt)
}

func (s *AttemptStore) terminate(ctx context.Context, campaignID, attemptID uuid.UUID, status domain.AttemptStatus, outcome *string, notes string, completedAt time.Time) error {
	applied, err := s.session.Query(`UPDATE attempts_by_campaign
		SET status = ?, outcome = ?, notes = ?, completed_at = ?
		WHERE campaign_id = ? AND attempt_id = ?
		IF status IN (?, ?)`,
		string(status), outcome, notes, completedAt,
		campaignID.String(), attemptID.String(),
		string(domain.AttemptStatusPending), string(domain.AttemptStatusCalling),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("attempt store: terminate: %w", err)
	}
	if !applied {
		return repository.ErrConflict
	}
	return nil
}

// SetOutcome corrects the free-form outcome classification after the fact.
// The status itself stays untouched.
func (s *AttemptStore) SetOutcome(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string) error {
	if err := s.session.Query(`UPDATE attempts_by_campaign SET outcome = ?
		WHERE campaign_id = ? AND attempt_id = ?`,
		outcome, campaignID.String(), attemptID.String(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: set outcome: %w", err)
	}
	return nil
}

// Get retrieves one attempt.
func (s *AttemptStore) Get(ctx context.Context, campaignID, attemptID uuid.UUID) (*domain.CallAttempt, error) {
	iter := s.session.Query(`SELECT campaign_id, attempt_id, contact_name, source_ref, phone_number, status, outcome, session_name, provider_call_id, notes, started_at, completed_at
		FROM attempts_by_campaign
		WHERE campaign_id = ? AND attempt_id = ?`,
		campaignID.String(), attemptID.String()).WithContext(ctx).Iter()

	attempt, ok, scanErr := scanAttempt(iter)
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt store: get: %w", err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	return attempt, nil
}

// ListByCampaign pages through a campaign's attempts.
func (s *AttemptStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallAttempt, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT campaign_id, attempt_id, contact_name, source_ref, phone_number, status, outcome, session_name, provider_call_id, notes, started_at, completed_at
		FROM attempts_by_campaign WHERE campaign_id = ?`, campaignID.String()).
		WithContext(ctx).PageSize(limit).PageState(pagingState)

	iter := query.Iter()
	var attempts []domain.CallAttempt
	for {
		attempt, ok, err := scanAttempt(iter)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		attempts = append(attempts, *attempt)
		if len(attempts) >= limit {
			break
		}
	}

	next := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("attempt store: list: %w", err)
	}
	return attempts, next, nil
}

// AttemptedRefs returns the latest attempt status per contact source ref.
// Later attempts for the same ref overwrite earlier terminal failures so the
// retry policy sees the freshest state.
func (s *AttemptStore) AttemptedRefs(ctx context.Context, campaignID uuid.UUID) (map[string]domain.AttemptStatus, error) {
	iter := s.session.Query(`SELECT source_ref, status, started_at
		FROM attempts_by_campaign WHERE campaign_id = ?`,
		campaignID.String()).WithContext(ctx).Iter()

	type latest struct {
		status    domain.AttemptStatus
		startedAt time.Time
	}
	seen := make(map[string]latest)

	var (
		ref     string
		status  string
		started time.Time
	)
	for iter.Scan(&ref, &status, &started) {
		if ref == "" {
			continue
		}
		if prior, ok := seen[ref]; ok && prior.startedAt.After(started) {
			continue
		}
		seen[ref] = latest{status: domain.AttemptStatus(status), startedAt: started}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt store: attempted refs: %w", err)
	}

	refs := make(map[string]domain.AttemptStatus, len(seen))
	for k, v := range seen {
		refs[k] = v.status
	}
	return refs, nil
}

func scanAttempt(iter *gocql.Iter) (*domain.CallAttempt, bool, error) {
	var (
		campaignIDStr string
		idStr         string
		contactName   string
		sourceRef     string
		phone         string
		status        string
		outcome       *string
		sessionName   string
		providerID    string
		notes         string
		startedAt     time.Time
		completedAt   *time.Time
	)

	if !iter.Scan(&campaignIDStr, &idStr, &contactName, &sourceRef, &phone, &status,
		&outcome, &sessionName, &providerID, &notes, &startedAt, &completedAt) {
		return nil, false, nil
	}

	campaignID, err := uuid.Parse(campaignIDStr)
	if err != nil {
		return nil, false, fmt.Errorf("attempt store: parse campaign_id: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, false, fmt.Errorf("attempt store: parse attempt_id: %w", err)
	}

	return &domain.CallAttempt{
		ID:             id,
		CampaignID:     campaignID,
		ContactName:    contactName,
		SourceRef:      sourceRef,
		PhoneNumber:    phone,
		Status:         domain.AttemptStatus(status),
		Outcome:        outcome,
		SessionName:    sessionName,
		ProviderCallID: providerID,
		Notes:          notes,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
	}, true, nil
}
