package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/queue"
	"github.com/acme/voicecampaign/internal/repository"
	apperrors "github.com/acme/voicecampaign/pkg/errors"
	"github.com/acme/voicecampaign/pkg/logger"
)

// EventSink publishes attempt lifecycle events. A nil sink disables
// publishing.
type EventSink interface {
	PublishAttempt(ctx context.Context, event queue.AttemptEvent) error
}

// Service owns campaign lifecycle transitions and counter bookkeeping. All
// counter mutations go through here so the cap invariant stays centralized.
type Service struct {
	repo     repository.CampaignRepository
	contacts repository.ContactRepository
	tallies  repository.OutcomeTallyRepository
	attempts repository.AttemptStore
	events   EventSink
	logger   *logger.Logger
}

// NewService constructs a campaign service.
func NewService(
	repo repository.CampaignRepository,
	contactRepo repository.ContactRepository,
	tallies repository.OutcomeTallyRepository,
	attempts repository.AttemptStore,
	events EventSink,
	lg *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		contacts: contactRepo,
		tallies:  tallies,
		attempts: attempts,
		events:   events,
		logger:   lg,
	}
}

// CreateCampaignInput captures campaign creation parameters.
type CreateCampaignInput struct {
	Name        string
	AgentID     string
	Prompt      string
	Source      domain.ContactSource
	StartHour   int
	EndHour     int
	CallingDays []time.Weekday
	TimeZone    string
	DailyCap    int
	Contacts    []ContactInput
}

// ContactInput expresses one inline contact.
type ContactInput struct {
	Name        string
	PhoneNumber string
	SourceRef   string
	DoNotCall   bool
}

// Create provisions a new campaign in draft state.
func (s *Service) Create(ctx context.Context, input CreateCampaignInput) (*domain.Campaign, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:            uuid.New(),
		Name:          input.Name,
		AgentID:       input.AgentID,
		Prompt:        input.Prompt,
		ContactSource: input.Source,
		ExecutionStatus: domain.ExecutionStatusDraft,
		Window: domain.CallingWindow{
			StartHour:   input.StartHour,
			EndHour:     input.EndHour,
			CallingDays: input.CallingDays,
		},
		TimeZone:  input.TimeZone,
		DailyCap:  input.DailyCap,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: create campaign: %w", err)
	}

	if len(input.Contacts) > 0 {
		if err := s.AddContacts(ctx, campaign.ID, input.Contacts); err != nil {
			return nil, err
		}
	}

	return campaign, nil
}

// AddContacts appends inline contacts to a campaign.
func (s *Service) AddContacts(ctx context.Context, campaignID uuid.UUID, inputs []ContactInput) error {
	records := make([]repository.ContactRecord, 0, len(inputs))
	for _, in := range inputs {
		if in.PhoneNumber == "" {
			return fmt.Errorf("%w: contact phone number is required", apperrors.ErrValidation)
		}
		ref := in.SourceRef
		if ref == "" {
			ref = uuid.NewString()
		}
		records = append(records, repository.ContactRecord{
			ID:          uuid.New(),
			CampaignID:  campaignID,
			Name:        in.Name,
			PhoneNumber: in.PhoneNumber,
			SourceRef:   ref,
			DoNotCall:   in.DoNotCall,
		})
	}

	if err := s.contacts.BulkInsert(ctx, campaignID, records); err != nil {
		return fmt.Errorf("campaign service: store contacts: %w", err)
	}
	return nil
}

// Get retrieves a campaign by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns with keyset pagination.
func (s *Service) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return s.repo.List(ctx, afterID, limit)
}

// Start moves a draft or paused campaign to running, zeroing the daily
// counter and making it due immediately.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.repo.Start(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("campaign started",
		zap.String("campaign_id", id.String()),
		zap.String("agent_id", campaign.AgentID))
	return campaign, nil
}

// Pause moves a running campaign to paused. The reason is persisted as free
// text and logged.
func (s *Service) Pause(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.repo.Pause(ctx, id, reason); err != nil {
		return err
	}
	s.logger.Info("campaign paused",
		zap.String("campaign_id", id.String()),
		zap.String("reason", reason))
	return nil
}

// Complete moves a running campaign to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Complete(ctx, id, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info("campaign completed", zap.String("campaign_id", id.String()))
	return nil
}

// Fail marks a running campaign failed on unrecoverable configuration
// problems.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.repo.Fail(ctx, id, reason); err != nil {
		return err
	}
	s.logger.Warn("campaign failed",
		zap.String("campaign_id", id.String()),
		zap.String("reason", reason))
	return nil
}

// RecordDial increments dial counters after every placement attempt,
// regardless of outcome, and returns the fresh campaign so the caller can
// re-evaluate the cap.
func (s *Service) RecordDial(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.repo.RecordDial(ctx, id)
}

// RecordPickup increments the pickup counter.
func (s *Service) RecordPickup(ctx context.Context, id uuid.UUID) error {
	return s.repo.RecordPickup(ctx, id)
}

// CompleteAttempt finalizes a calling attempt reported done by the provider:
// the attempt turns completed with its outcome, a pickup is counted when the
// contact answered, and the outcome tally gains a bucket.
func (s *Service) CompleteAttempt(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string, pickedUp bool) error {
	if outcome == "" {
		return fmt.Errorf("%w: outcome is required", apperrors.ErrValidation)
	}

	attempt, err := s.attempts.Get(ctx, campaignID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return fmt.Errorf("%w: attempt %s is already %s", apperrors.ErrInvalidTransition, attemptID, attempt.Status)
	}

	now := time.Now().UTC()
	if err := s.attempts.MarkCompleted(ctx, campaignID, attemptID, outcome, now); err != nil {
		return err
	}

	if pickedUp {
		if err := s.repo.RecordPickup(ctx, campaignID); err != nil {
			return fmt.Errorf("campaign service: record pickup: %w", err)
		}
	}
	if err := s.tallies.ApplyDelta(ctx, campaignID, outcome, 1); err != nil {
		return fmt.Errorf("campaign service: record outcome: %w", err)
	}

	if s.events != nil {
		event := queue.AttemptEvent{
			AttemptID:      attemptID,
			CampaignID:     campaignID,
			PhoneNumber:    attempt.PhoneNumber,
			ContactName:    attempt.ContactName,
			SourceRef:      attempt.SourceRef,
			Status:         string(domain.AttemptStatusCompleted),
			SessionName:    attempt.SessionName,
			ProviderCallID: attempt.ProviderCallID,
			OccurredAt:     now,
		}
		if err := s.events.PublishAttempt(ctx, event); err != nil {
			s.logger.Warn("campaign service: publish completed attempt",
				zap.String("attempt_id", attemptID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// RecordOutcome classifies a terminal attempt, adjusting tally buckets when
// an earlier classification is corrected.
func (s *Service) RecordOutcome(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string) error {
	if outcome == "" {
		return fmt.Errorf("%w: outcome is required", apperrors.ErrValidation)
	}

	attempt, err := s.attempts.Get(ctx, campaignID, attemptID)
	if err != nil {
		return err
	}

	if attempt.Outcome != nil && *attempt.Outcome == outcome {
		return nil
	}

	if err := s.attempts.SetOutcome(ctx, campaignID, attemptID, outcome); err != nil {
		return err
	}

	if attempt.Outcome != nil {
		if err := s.tallies.ApplyDelta(ctx, campaignID, *attempt.Outcome, -1); err != nil {
			return fmt.Errorf("campaign service: back out old outcome: %w", err)
		}
	}
	if err := s.tallies.ApplyDelta(ctx, campaignID, outcome, 1); err != nil {
		return fmt.Errorf("campaign service: record outcome: %w", err)
	}
	return nil
}

// Outcomes returns the outcome histogram for a campaign.
func (s *Service) Outcomes(ctx context.Context, campaignID uuid.UUID) ([]domain.OutcomeTally, error) {
	return s.tallies.List(ctx, campaignID)
}

// ResetDailyCapsIfNeeded zeroes daily counters for every running campaign
// whose last reset predates the current local day. Invoked once per tick,
// before per-campaign evaluation; one statement covers all campaigns.
func (s *Service) ResetDailyCapsIfNeeded(ctx context.Context, now time.Time) error {
	n, err := s.repo.ResetDailyCounters(ctx, now)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("daily call counters reset", zap.Int64("campaigns", n))
	}
	return nil
}

func validateCreateInput(input CreateCampaignInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}
	if input.AgentID == "" {
		return fmt.Errorf("%w: agent id is required", apperrors.ErrValidation)
	}
	if input.DailyCap <= 0 {
		return fmt.Errorf("%w: daily cap must be positive", apperrors.ErrValidation)
	}
	if input.StartHour < 0 || input.StartHour > 24 || input.EndHour < 0 || input.EndHour > 24 {
		return fmt.Errorf("%w: calling hours must be between 0 and 24", apperrors.ErrValidation)
	}
	if input.TimeZone != "" {
		if _, err := time.LoadLocation(input.TimeZone); err != nil {
			return fmt.Errorf("%w: unknown time zone %q", apperrors.ErrValidation, input.TimeZone)
		}
	}
	switch input.Source.Type {
	case domain.ContactSourceInline, "":
	case domain.ContactSourceSpreadsheet:
		if input.Source.Ref == "" {
			return fmt.Errorf("%w: spreadsheet source requires a file reference", apperrors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown contact source type %q", apperrors.ErrValidation, input.Source.Type)
	}
	return nil
}
