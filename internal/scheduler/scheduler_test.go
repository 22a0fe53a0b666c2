package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acme/voicecampaign/internal/config"
	"github.com/acme/voicecampaign/internal/domain"
	dialsvc "github.com/acme/voicecampaign/internal/service/dial"
	"github.com/acme/voicecampaign/pkg/logger"
)

type fakeCampaignOps struct {
	campaign   *domain.Campaign
	pauses     []string
	completed  int
	resetCalls int
}

func (f *fakeCampaignOps) ResetDailyCapsIfNeeded(ctx context.Context, now time.Time) error {
	f.resetCalls++
	return nil
}

func (f *fakeCampaignOps) Pause(ctx context.Context, id uuid.UUID, reason string) error {
	f.pauses = append(f.pauses, reason)
	return nil
}

func (f *fakeCampaignOps) Complete(ctx context.Context, id uuid.UUID) error {
	f.completed++
	return nil
}

func (f *fakeCampaignOps) RecordDial(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	f.campaign.CurrentDailyCalls++
	f.campaign.TotalDials++
	fresh := *f.campaign
	return &fresh, nil
}

type fakeSource struct {
	due      []*domain.Campaign
	nextCall []time.Time
}

func (f *fakeSource) ListRunningDue(ctx context.Context, now time.Time, limit int) ([]*domain.Campaign, error) {
	return f.due, nil
}

func (f *fakeSource) SetNextCall(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.nextCall = append(f.nextCall, at)
	return nil
}

type fakeDialer struct {
	outcomes map[string]dialsvc.Outcome
	err      error
	dialed   []string
}

func (f *fakeDialer) Place(ctx context.Context, campaign *domain.Campaign, contact domain.Contact) (dialsvc.Outcome, error) {
	if f.err != nil {
		return dialsvc.Outcome{}, f.err
	}
	f.dialed = append(f.dialed, contact.SourceRef)
	if o, ok := f.outcomes[contact.SourceRef]; ok {
		return o, nil
	}
	return dialsvc.Outcome{Attempt: &domain.CallAttempt{ID: uuid.New(), PhoneNumber: contact.PhoneNumber}}, nil
}

type fakeResolver struct {
	contacts []domain.Contact
}

func (f *fakeResolver) Resolve(ctx context.Context, campaign *domain.Campaign) ([]domain.Contact, error) {
	return f.contacts, nil
}

type fakeAttemptIndex struct {
	attempted map[string]domain.AttemptStatus
}

func (f *fakeAttemptIndex) AttemptedRefs(ctx context.Context, campaignID uuid.UUID) (map[string]domain.AttemptStatus, error) {
	if f.attempted == nil {
		return map[string]domain.AttemptStatus{}, nil
	}
	return f.attempted, nil
}

func testCampaign(dailyCap int) *domain.Campaign {
	return &domain.Campaign{
		ID:              uuid.New(),
		Name:            "outreach",
		AgentID:         "agent-1",
		ExecutionStatus: domain.ExecutionStatusRunning,
		TimeZone:        "UTC",
		DailyCap:        dailyCap,
	}
}

func testContacts(n int) []domain.Contact {
	contacts := make([]domain.Contact, 0, n)
	for i := 0; i < n; i++ {
		contacts = append(contacts, domain.Contact{
			Name:        fmt.Sprintf("contact-%d", i),
			PhoneNumber: fmt.Sprintf("+1555000%04d", i),
			SourceRef:   fmt.Sprintf("ref-%d", i),
		})
	}
	return contacts
}

func newTestScheduler(cfg config.EngineConfig, deps Deps) *Scheduler {
	if cfg.CampaignConcurrency == 0 {
		cfg.CampaignConcurrency = 1
	}
	return New(cfg, deps, logger.Nop())
}

func TestTickCompletesExhaustedCampaign(t *testing.T) {
	campaign := testCampaign(10)
	ops := &fakeCampaignOps{campaign: campaign}
	dialer := &fakeDialer{}

	s := newTestScheduler(config.EngineConfig{}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    dialer,
		Resolver:  &fakeResolver{contacts: testContacts(2)},
		Attempts:  &fakeAttemptIndex{},
	})

	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, []string{"ref-0", "ref-1"}, dialer.dialed)
	require.Equal(t, 1, ops.completed)
	require.Empty(t, ops.pauses)
	require.Equal(t, 2, campaign.CurrentDailyCalls)
	require.Equal(t, int64(2), campaign.TotalDials)
}

func TestTickPausesOnMissingRoute(t *testing.T) {
	campaign := testCampaign(10)
	ops := &fakeCampaignOps{campaign: campaign}
	dialer := &fakeDialer{err: fmt.Errorf("%w: agent agent-1", dialsvc.ErrRouteMissing)}

	s := newTestScheduler(config.EngineConfig{}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    dialer,
		Resolver:  &fakeResolver{contacts: testContacts(2)},
		Attempts:  &fakeAttemptIndex{},
	})

	require.NoError(t, s.Tick(context.Background()))
	require.Empty(t, dialer.dialed)
	require.Zero(t, ops.completed)
	require.Len(t, ops.pauses, 1)
	require.Contains(t, ops.pauses[0], "no outbound route")
	require.Zero(t, campaign.TotalDials)
}

func TestTickCountsFailedPlacements(t *testing.T) {
	campaign := testCampaign(10)
	ops := &fakeCampaignOps{campaign: campaign}
	dialer := &fakeDialer{outcomes: map[string]dialsvc.Outcome{
		"ref-0": {
			Attempt: &domain.CallAttempt{ID: uuid.New(), Status: domain.AttemptStatusFailed},
			Failed:  true,
			Reason:  "create bridge participant: context deadline exceeded",
		},
	}}

	s := newTestScheduler(config.EngineConfig{}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    dialer,
		Resolver:  &fakeResolver{contacts: testContacts(1)},
		Attempts:  &fakeAttemptIndex{},
	})

	require.NoError(t, s.Tick(context.Background()))
	// A failed attempt still consumed a dial, and the campaign completes.
	require.Equal(t, int64(1), campaign.TotalDials)
	require.Equal(t, 1, ops.completed)
	require.Empty(t, ops.pauses)
}

func TestTickPausesWhenDailyCapFillsMidPass(t *testing.T) {
	campaign := testCampaign(1)
	ops := &fakeCampaignOps{campaign: campaign}
	dialer := &fakeDialer{}

	s := newTestScheduler(config.EngineConfig{}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    dialer,
		Resolver:  &fakeResolver{contacts: testContacts(3)},
		Attempts:  &fakeAttemptIndex{},
	})

	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, []string{"ref-0"}, dialer.dialed)
	require.Zero(t, ops.completed)
	require.Len(t, ops.pauses, 1)
	require.Contains(t, ops.pauses[0], "daily cap reached")
}

func TestTickSkipsAttemptedContacts(t *testing.T) {
	campaign := testCampaign(10)
	ops := &fakeCampaignOps{campaign: campaign}
	dialer := &fakeDialer{}

	s := newTestScheduler(config.EngineConfig{}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    dialer,
		Resolver:  &fakeResolver{contacts: testContacts(3)},
		Attempts: &fakeAttemptIndex{attempted: map[string]domain.AttemptStatus{
			"ref-0": domain.AttemptStatusCompleted,
			"ref-1": domain.AttemptStatusFailed,
		}},
	})

	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, []string{"ref-2"}, dialer.dialed)
	require.Equal(t, 1, ops.completed)
}

func TestTickRetriesFailedContactsWhenConfigured(t *testing.T) {
	campaign := testCampaign(10)
	ops := &fakeCampaignOps{campaign: campaign}
	dialer := &fakeDialer{}

	s := newTestScheduler(config.EngineConfig{RetryFailedContacts: true}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    dialer,
		Resolver:  &fakeResolver{contacts: testContacts(2)},
		Attempts: &fakeAttemptIndex{attempted: map[string]domain.AttemptStatus{
			"ref-0": domain.AttemptStatusCompleted,
			"ref-1": domain.AttemptStatusFailed,
		}},
	})

	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, []string{"ref-1"}, dialer.dialed)
}

func TestTickStopsBetweenContactsOnShutdown(t *testing.T) {
	campaign := testCampaign(10)
	ops := &fakeCampaignOps{campaign: campaign}

	ctx, cancel := context.WithCancel(context.Background())
	dialer := &fakeDialer{outcomes: map[string]dialsvc.Outcome{}}
	// Cancel after the first placement by wrapping the dialer.
	first := true
	cancelling := placeFunc(func(c context.Context, campaignArg *domain.Campaign, contact domain.Contact) (dialsvc.Outcome, error) {
		out, err := dialer.Place(c, campaignArg, contact)
		if first {
			first = false
			cancel()
		}
		return out, err
	})

	s := newTestScheduler(config.EngineConfig{}, Deps{
		Campaigns: ops,
		Source:    &fakeSource{due: []*domain.Campaign{campaign}},
		Dialer:    cancelling,
		Resolver:  &fakeResolver{contacts: testContacts(3)},
		Attempts:  &fakeAttemptIndex{},
	})

	_ = s.Tick(ctx)
	require.Equal(t, []string{"ref-0"}, dialer.dialed)
	require.Zero(t, ops.completed)
	require.Empty(t, ops.pauses)
}

type placeFunc func(ctx context.Context, campaign *domain.Campaign, contact domain.Contact) (dialsvc.Outcome, error)

func (f placeFunc) Place(ctx context.Context, campaign *domain.Campaign, contact domain.Contact) (dialsvc.Outcome, error) {
	return f(ctx, campaign, contact)
}
