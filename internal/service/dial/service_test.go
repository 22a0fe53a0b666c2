package dial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/queue"
	"github.com/acme/voicecampaign/internal/repository"
	"github.com/acme/voicecampaign/internal/telephony"
	"github.com/acme/voicecampaign/pkg/logger"
)

type fakeRoutes struct {
	binding *domain.RouteBinding
	err     error
}

func (f *fakeRoutes) Get(ctx context.Context, agentID string) (*domain.RouteBinding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.binding, nil
}

type fakeAttempts struct {
	inserted  []*domain.CallAttempt
	calling   []uuid.UUID
	failed    map[uuid.UUID]string
	insertErr error
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{failed: map[uuid.UUID]string{}}
}

func (f *fakeAttempts) Insert(ctx context.Context, attempt *domain.CallAttempt) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, attempt)
	return nil
}

func (f *fakeAttempts) MarkCalling(ctx context.Context, campaignID, attemptID uuid.UUID, sessionName, providerCallID string) error {
	f.calling = append(f.calling, attemptID)
	return nil
}

func (f *fakeAttempts) MarkFailed(ctx context.Context, campaignID, attemptID uuid.UUID, notes string, completedAt time.Time) error {
	f.failed[attemptID] = notes
	return nil
}

func (f *fakeAttempts) MarkCompleted(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string, completedAt time.Time) error {
	return nil
}

func (f *fakeAttempts) SetOutcome(ctx context.Context, campaignID, attemptID uuid.UUID, outcome string) error {
	return nil
}

func (f *fakeAttempts) Get(ctx context.Context, campaignID, attemptID uuid.UUID) (*domain.CallAttempt, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeAttempts) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallAttempt, []byte, error) {
	return nil, nil, nil
}

func (f *fakeAttempts) AttemptedRefs(ctx context.Context, campaignID uuid.UUID) (map[string]domain.AttemptStatus, error) {
	return map[string]domain.AttemptStatus{}, nil
}

type fakeProvider struct {
	sessionErr  error
	dispatchErr error
	bridgeErr   error
	sessions    []string
}

func (f *fakeProvider) CreateSession(ctx context.Context, name string, metadata map[string]string) error {
	f.sessions = append(f.sessions, name)
	return f.sessionErr
}

func (f *fakeProvider) DispatchAgent(ctx context.Context, req telephony.DispatchRequest) (string, error) {
	if f.dispatchErr != nil {
		return "", f.dispatchErr
	}
	return "dispatch-1", nil
}

func (f *fakeProvider) CreateBridgeParticipant(ctx context.Context, req telephony.BridgeRequest) (telephony.BridgeInfo, error) {
	if f.bridgeErr != nil {
		return telephony.BridgeInfo{}, f.bridgeErr
	}
	return telephony.BridgeInfo{ParticipantID: "p-1", ProviderCallID: "call-1"}, nil
}

type fakeSink struct {
	events []queue.AttemptEvent
}

func (f *fakeSink) PublishAttempt(ctx context.Context, event queue.AttemptEvent) error {
	f.events = append(f.events, event)
	return nil
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:      uuid.New(),
		AgentID: "agent-1",
		Prompt:  "say hello",
	}
}

func testContact() domain.Contact {
	return domain.Contact{Name: "Ada", PhoneNumber: "+15550001234", SourceRef: "ref-1"}
}

func testRoute() *domain.RouteBinding {
	return &domain.RouteBinding{AgentID: "agent-1", TrunkID: "trunk-1", CallerID: "+15559990000"}
}

func TestPlaceHappyPath(t *testing.T) {
	attempts := newFakeAttempts()
	sink := &fakeSink{}
	svc := NewService(&fakeRoutes{binding: testRoute()}, attempts, &fakeProvider{}, sink, time.Second, logger.Nop())

	outcome, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.NoError(t, err)
	require.False(t, outcome.Failed)
	require.NotNil(t, outcome.Attempt)
	require.Equal(t, domain.AttemptStatusCalling, outcome.Attempt.Status)
	require.Equal(t, "call-1", outcome.Attempt.ProviderCallID)

	require.Len(t, attempts.inserted, 1)
	require.Len(t, attempts.calling, 1)
	require.Len(t, sink.events, 1)
	require.Equal(t, "calling", sink.events[0].Status)
}

func TestPlaceMissingRouteIsTerminal(t *testing.T) {
	attempts := newFakeAttempts()
	svc := NewService(&fakeRoutes{err: repository.ErrNotFound}, attempts, &fakeProvider{}, nil, time.Second, logger.Nop())

	_, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.ErrorIs(t, err, ErrRouteMissing)
	// No attempt record exists for a contact that was never dialed.
	require.Empty(t, attempts.inserted)
}

func TestPlaceRouteLookupFailureIsPerContact(t *testing.T) {
	svc := NewService(&fakeRoutes{err: errors.New("connection refused")}, newFakeAttempts(), &fakeProvider{}, nil, time.Second, logger.Nop())

	outcome, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.NoError(t, err)
	require.True(t, outcome.Failed)
	require.Contains(t, outcome.Reason, "resolve route")
}

func TestPlaceToleratesExistingSession(t *testing.T) {
	provider := &fakeProvider{sessionErr: telephony.ErrSessionExists}
	svc := NewService(&fakeRoutes{binding: testRoute()}, newFakeAttempts(), provider, nil, time.Second, logger.Nop())

	outcome, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.NoError(t, err)
	require.False(t, outcome.Failed)
}

func TestPlaceBridgeFailureMarksAttemptFailed(t *testing.T) {
	attempts := newFakeAttempts()
	provider := &fakeProvider{bridgeErr: context.DeadlineExceeded}
	sink := &fakeSink{}
	svc := NewService(&fakeRoutes{binding: testRoute()}, attempts, provider, sink, time.Second, logger.Nop())

	outcome, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.NoError(t, err)
	require.True(t, outcome.Failed)
	require.Contains(t, outcome.Reason, "create bridge participant")
	require.Equal(t, domain.AttemptStatusFailed, outcome.Attempt.Status)

	require.Len(t, attempts.inserted, 1)
	notes, ok := attempts.failed[outcome.Attempt.ID]
	require.True(t, ok)
	require.Contains(t, notes, "create bridge participant")
	require.Len(t, sink.events, 1)
	require.Equal(t, "failed", sink.events[0].Status)
}

func TestPlaceDispatchFailureMarksAttemptFailed(t *testing.T) {
	attempts := newFakeAttempts()
	provider := &fakeProvider{dispatchErr: errors.New("all transports failed")}
	svc := NewService(&fakeRoutes{binding: testRoute()}, attempts, provider, nil, time.Second, logger.Nop())

	outcome, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.NoError(t, err)
	require.True(t, outcome.Failed)
	require.Contains(t, outcome.Reason, "dispatch agent")
}

func TestPlaceInsertFailureIsPerContact(t *testing.T) {
	attempts := newFakeAttempts()
	attempts.insertErr = errors.New("scylla unavailable")
	svc := NewService(&fakeRoutes{binding: testRoute()}, attempts, &fakeProvider{}, nil, time.Second, logger.Nop())

	outcome, err := svc.Place(context.Background(), testCampaign(), testContact())
	require.NoError(t, err)
	require.True(t, outcome.Failed)
	require.Contains(t, outcome.Reason, "create attempt record")
}

func TestSessionNameDerivation(t *testing.T) {
	at := time.UnixMilli(1748800000000).UTC()
	name := sessionName("+15550001234", at)
	require.Equal(t, "call-15550001234-1748800000000", name)
}
