package dial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/queue"
	"github.com/acme/voicecampaign/internal/repository"
	"github.com/acme/voicecampaign/internal/telephony"
	apperrors "github.com/acme/voicecampaign/pkg/errors"
	"github.com/acme/voicecampaign/pkg/logger"
)

// ErrRouteMissing reports that no outbound route is bound to the campaign's
// agent. It is terminal for the campaign, not the contact: the caller pauses
// the campaign and no attempt record is created.
var ErrRouteMissing = errors.New("no outbound route bound to agent")

// EventSink publishes attempt lifecycle events.
type EventSink interface {
	PublishAttempt(ctx context.Context, event queue.AttemptEvent) error
}

// Outcome is the result of one placement. Per-contact failures are carried
// here as values so the scheduling loop can continue with the next contact;
// only campaign-terminal conditions surface as errors from Place.
type Outcome struct {
	Attempt *domain.CallAttempt
	Failed  bool
	Reason  string
}

// Service executes the ordered call placement steps for one contact.
type Service struct {
	routes   repository.RouteBindingRepository
	attempts repository.AttemptStore
	provider telephony.Provider
	events   EventSink
	budget   time.Duration
	logger   *logger.Logger
}

// NewService builds the placement service. budget caps the wall time of one
// whole placement so a stuck provider cannot stall the scheduling loop.
func NewService(
	routes repository.RouteBindingRepository,
	attempts repository.AttemptStore,
	provider telephony.Provider,
	events EventSink,
	budget time.Duration,
	lg *logger.Logger,
) *Service {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &Service{
		routes:   routes,
		attempts: attempts,
		provider: provider,
		events:   events,
		budget:   budget,
		logger:   lg,
	}
}

// Place runs the placement protocol: route resolution, pending attempt
// record, session creation, agent dispatch, bridge participant. A non-nil
// error means the campaign must stop (ErrRouteMissing); every per-contact
// failure comes back inside the Outcome.
func (s *Service) Place(ctx context.Context, campaign *domain.Campaign, contact domain.Contact) (Outcome, error) {
	route, err := s.routes.Get(ctx, campaign.AgentID)
	if err != nil {
		if apperrors.Is(err, repository.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: agent %s", ErrRouteMissing, campaign.AgentID)
		}
		return Outcome{Failed: true, Reason: fmt.Sprintf("resolve route: %v", err)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	now := time.Now().UTC()
	attempt := &domain.CallAttempt{
		ID:          uuid.New(),
		CampaignID:  campaign.ID,
		ContactName: contact.Name,
		SourceRef:   contact.SourceRef,
		PhoneNumber: contact.PhoneNumber,
		Status:      domain.AttemptStatusPending,
		SessionName: sessionName(contact.PhoneNumber, now),
		StartedAt:   now,
	}

	if err := s.attempts.Insert(ctx, attempt); err != nil {
		return Outcome{Failed: true, Reason: fmt.Sprintf("create attempt record: %v", err)}, nil
	}

	if err := s.runSignaling(ctx, campaign, contact, route, attempt); err != nil {
		return s.failAttempt(ctx, campaign, attempt, err), nil
	}

	if err := s.attempts.MarkCalling(ctx, campaign.ID, attempt.ID, attempt.SessionName, attempt.ProviderCallID); err != nil {
		return s.failAttempt(ctx, campaign, attempt, fmt.Errorf("persist calling status: %w", err)), nil
	}
	attempt.Status = domain.AttemptStatusCalling

	s.publish(ctx, campaign, attempt)
	return Outcome{Attempt: attempt}, nil
}

func (s *Service) runSignaling(ctx context.Context, campaign *domain.Campaign, contact domain.Contact, route *domain.RouteBinding, attempt *domain.CallAttempt) error {
	metadata := map[string]string{
		"campaign_id":  campaign.ID.String(),
		"attempt_id":   attempt.ID.String(),
		"contact_name": contact.Name,
		"phone_number": contact.PhoneNumber,
	}

	if err := s.provider.CreateSession(ctx, attempt.SessionName, metadata); err != nil {
		if !errors.Is(err, telephony.ErrSessionExists) {
			return fmt.Errorf("create session: %w", err)
		}
	}

	dispatchID, err := s.provider.DispatchAgent(ctx, telephony.DispatchRequest{
		SessionName: attempt.SessionName,
		AgentID:     campaign.AgentID,
		CampaignID:  campaign.ID.String(),
		Prompt:      campaign.Prompt,
		ContactName: contact.Name,
		PhoneNumber: contact.PhoneNumber,
		CallerID:    route.CallerID,
		TrunkID:     route.TrunkID,
	})
	if err != nil {
		return fmt.Errorf("dispatch agent: %w", err)
	}
	s.logger.Debug("dial: agent dispatched",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("session", attempt.SessionName),
		zap.String("dispatch_id", dispatchID))

	bridge, err := s.provider.CreateBridgeParticipant(ctx, telephony.BridgeRequest{
		SessionName: attempt.SessionName,
		TrunkID:     route.TrunkID,
		PhoneNumber: contact.PhoneNumber,
		CallerID:    route.CallerID,
	})
	if err != nil {
		return fmt.Errorf("create bridge participant: %w", err)
	}

	attempt.ProviderCallID = bridge.ProviderCallID
	return nil
}

func (s *Service) failAttempt(ctx context.Context, campaign *domain.Campaign, attempt *domain.CallAttempt, cause error) Outcome {
	reason := cause.Error()
	attempt.Status = domain.AttemptStatusFailed
	attempt.Notes = reason

	// Persist with a fresh context: the placement budget may already be
	// exhausted and the failure still has to be recorded.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.attempts.MarkFailed(persistCtx, campaign.ID, attempt.ID, reason, time.Now().UTC()); err != nil {
		s.logger.Error("dial: persist failed attempt",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}

	s.publish(persistCtx, campaign, attempt)
	return Outcome{Attempt: attempt, Failed: true, Reason: reason}
}

func (s *Service) publish(ctx context.Context, campaign *domain.Campaign, attempt *domain.CallAttempt) {
	if s.events == nil {
		return
	}
	event := queue.AttemptEvent{
		AttemptID:      attempt.ID,
		CampaignID:     campaign.ID,
		AgentID:        campaign.AgentID,
		PhoneNumber:    attempt.PhoneNumber,
		ContactName:    attempt.ContactName,
		SourceRef:      attempt.SourceRef,
		Status:         string(attempt.Status),
		SessionName:    attempt.SessionName,
		ProviderCallID: attempt.ProviderCallID,
		Notes:          attempt.Notes,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.events.PublishAttempt(ctx, event); err != nil {
		s.logger.Warn("dial: publish attempt event",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}
}

// sessionName derives a per-attempt unique session name from the dialed
// number and the attempt start time, so retries for the same contact never
// collide with a still-live session.
func sessionName(phoneNumber string, at time.Time) string {
	digits := strings.TrimPrefix(phoneNumber, "+")
	return fmt.Sprintf("call-%s-%d", digits, at.UnixMilli())
}
