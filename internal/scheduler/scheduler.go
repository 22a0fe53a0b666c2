package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme/voicecampaign/internal/config"
	"github.com/acme/voicecampaign/internal/domain"
	dialsvc "github.com/acme/voicecampaign/internal/service/dial"
	"github.com/acme/voicecampaign/pkg/logger"
)

// CampaignOps is the slice of campaign lifecycle operations the loop drives.
type CampaignOps interface {
	ResetDailyCapsIfNeeded(ctx context.Context, now time.Time) error
	Pause(ctx context.Context, id uuid.UUID, reason string) error
	Complete(ctx context.Context, id uuid.UUID) error
	RecordDial(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
}

// CampaignSource finds due campaigns and bumps their re-evaluation time.
type CampaignSource interface {
	ListRunningDue(ctx context.Context, now time.Time, limit int) ([]*domain.Campaign, error)
	SetNextCall(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Dialer places one call for one contact.
type Dialer interface {
	Place(ctx context.Context, campaign *domain.Campaign, contact domain.Contact) (dialsvc.Outcome, error)
}

// ContactResolver produces the callable contact set for a campaign.
type ContactResolver interface {
	Resolve(ctx context.Context, campaign *domain.Campaign) ([]domain.Contact, error)
}

// AttemptIndex reports which contacts already have attempts.
type AttemptIndex interface {
	AttemptedRefs(ctx context.Context, campaignID uuid.UUID) (map[string]domain.AttemptStatus, error)
}

// LeaseKeeper guards a campaign pass against concurrent engine instances.
// A nil keeper disables leasing.
type LeaseKeeper interface {
	Acquire(ctx context.Context, campaignID uuid.UUID) (string, bool, error)
	Release(ctx context.Context, campaignID uuid.UUID, token string) error
}

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Campaigns CampaignOps
	Source    CampaignSource
	Dialer    Dialer
	Resolver  ContactResolver
	Attempts  AttemptIndex
	Lease     LeaseKeeper
}

// Scheduler drives campaign passes on a fixed tick: daily counter reset,
// due-campaign discovery, and the per-contact placement loop.
type Scheduler struct {
	cfg    config.EngineConfig
	deps   Deps
	logger *logger.Logger
}

// New constructs a scheduler.
func New(cfg config.EngineConfig, deps Deps, lg *logger.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, deps: deps, logger: lg}
}

// Run executes the scheduling loop until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one scheduling pass over all due campaigns. Errors abort the
// tick early; the next tick retries from persisted state.
func (s *Scheduler) Tick(ctx context.Context) error {
	tracer := otel.Tracer("voicecampaign.scheduler")
	sctx, span := tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	now := time.Now().UTC()
	if err := s.deps.Campaigns.ResetDailyCapsIfNeeded(sctx, now); err != nil {
		span.RecordError(err)
		return err
	}

	campaigns, err := s.deps.Source.ListRunningDue(sctx, now, s.cfg.CampaignFetchLimit)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))
	if len(campaigns) == 0 {
		return nil
	}
	s.logger.Info("scheduler: found due campaigns", zap.Int("count", len(campaigns)), zap.Time("now", now))

	// Campaigns run concurrently with each other; contacts within one
	// campaign stay strictly sequential inside runCampaign.
	limit := s.cfg.CampaignConcurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(sctx)
	g.SetLimit(limit)
	for _, campaign := range campaigns {
		campaign := campaign
		g.Go(func() error {
			s.runCampaign(gctx, campaign)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runCampaign(ctx context.Context, campaign *domain.Campaign) {
	lg := s.logger.With(zap.String("campaign_id", campaign.ID.String()))

	tracer := otel.Tracer("voicecampaign.scheduler")
	cctx, span := tracer.Start(ctx, "scheduler.campaign", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID.String()),
	))
	defer span.End()

	if s.deps.Lease != nil {
		token, ok, err := s.deps.Lease.Acquire(cctx, campaign.ID)
		if err != nil {
			span.RecordError(err)
			lg.Error("scheduler: acquire lease", zap.Error(err))
			return
		}
		if !ok {
			lg.Debug("scheduler: campaign leased by another instance")
			return
		}
		defer func() {
			if err := s.deps.Lease.Release(context.WithoutCancel(cctx), campaign.ID, token); err != nil {
				lg.Warn("scheduler: release lease", zap.Error(err))
			}
		}()
	}

	s.runPass(cctx, campaign, lg)
}

// runPass walks the campaign's contacts in source order, re-checking the
// calling window and daily cap before every placement.
func (s *Scheduler) runPass(ctx context.Context, campaign *domain.Campaign, lg *logger.Logger) {
	if err := s.deps.Source.SetNextCall(ctx, campaign.ID, time.Now().UTC().Add(s.cfg.TickInterval)); err != nil {
		lg.Warn("scheduler: set next call time", zap.Error(err))
	}

	contacts, err := s.deps.Resolver.Resolve(ctx, campaign)
	if err != nil {
		lg.Error("scheduler: resolve contacts", zap.Error(err))
		return
	}

	attempted, err := s.deps.Attempts.AttemptedRefs(ctx, campaign.ID)
	if err != nil {
		lg.Error("scheduler: load attempted contacts", zap.Error(err))
		return
	}

	for _, contact := range contacts {
		if s.alreadyProcessed(attempted, contact) {
			continue
		}

		// Shutdown observed between contacts: the pass stops here and a
		// future tick resumes from persisted state.
		if ctx.Err() != nil {
			lg.Info("scheduler: pass interrupted by shutdown")
			return
		}

		now := time.Now().UTC()
		if !MayExecute(campaign, now) {
			reason := rejectionReason(campaign, now)
			lg.Info("scheduler: pausing campaign", zap.String("reason", reason))
			if err := s.deps.Campaigns.Pause(ctx, campaign.ID, reason); err != nil {
				lg.Error("scheduler: pause campaign", zap.Error(err))
			}
			return
		}

		// The in-flight placement finishes even if shutdown arrives
		// mid-call; its own budget bounds the wait.
		outcome, err := s.deps.Dialer.Place(context.WithoutCancel(ctx), campaign, contact)
		if err != nil {
			if errors.Is(err, dialsvc.ErrRouteMissing) {
				lg.Warn("scheduler: no route for agent, pausing campaign", zap.Error(err))
				if pauseErr := s.deps.Campaigns.Pause(ctx, campaign.ID, err.Error()); pauseErr != nil {
					lg.Error("scheduler: pause campaign", zap.Error(pauseErr))
				}
				return
			}
			lg.Error("scheduler: placement error", zap.Error(err))
			return
		}

		fresh, err := s.deps.Campaigns.RecordDial(ctx, campaign.ID)
		if err != nil {
			// Without fresh counters the cap cannot be enforced; abandon
			// the pass and let the next tick retry.
			lg.Error("scheduler: record dial", zap.Error(err))
			return
		}
		campaign = fresh

		if outcome.Failed {
			lg.Warn("scheduler: contact placement failed",
				zap.String("phone", contact.PhoneNumber),
				zap.String("reason", outcome.Reason))
		} else {
			lg.Info("scheduler: call placed",
				zap.String("phone", contact.PhoneNumber),
				zap.String("attempt_id", outcome.Attempt.ID.String()))
		}

		if s.cfg.PacingDelay > 0 {
			select {
			case <-ctx.Done():
				lg.Info("scheduler: pass interrupted by shutdown")
				return
			case <-time.After(s.cfg.PacingDelay):
			}
		}
	}

	lg.Info("scheduler: contact list exhausted, completing campaign")
	if err := s.deps.Campaigns.Complete(ctx, campaign.ID); err != nil {
		lg.Error("scheduler: complete campaign", zap.Error(err))
	}
}

// alreadyProcessed applies the retry policy: contacts with a prior attempt
// are skipped, unless the attempt failed and retry_failed_contacts is set.
func (s *Scheduler) alreadyProcessed(attempted map[string]domain.AttemptStatus, contact domain.Contact) bool {
	status, ok := attempted[contact.SourceRef]
	if !ok {
		return false
	}
	if status == domain.AttemptStatusFailed && s.cfg.RetryFailedContacts {
		return false
	}
	return true
}
