package finalizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/metrics"
)

type stubClient struct {
	mu sync.Mutex

	approveErrs []error
	approveCall int

	inviteLink string
	inviteErr  error
}

func (s *stubClient) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.approveCall
	s.approveCall++
	if call >= len(s.approveErrs) {
		return nil
	}
	return s.approveErrs[call]
}

func (s *stubClient) approveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approveCall
}

func (s *stubClient) BanChatMember(ctx context.Context, chatID, userID int64) error { return nil }
func (s *stubClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	return nil
}
func (s *stubClient) GetStarTransactions(ctx context.Context, offset, limit int) ([]telegram.StarTransaction, error) {
	return nil, nil
}
func (s *stubClient) CreateInviteLink(ctx context.Context, chatID int64, expireAt time.Time) (string, error) {
	return s.inviteLink, s.inviteErr
}
func (s *stubClient) EditUserStarSubscription(ctx context.Context, userID int64, chargeID string, canceled bool) error {
	return nil
}

type stubAccess struct {
	ok  bool
	err error
}

func (s *stubAccess) HasAccess(ctx context.Context, userID int64) (bool, error) {
	return s.ok, s.err
}

type stubPasses struct {
	held   bool
	burned int
}

func (s *stubPasses) Burn(ctx context.Context, telegramID int64) (bool, error) {
	if !s.held {
		return false, nil
	}
	s.held = false
	s.burned++
	return true, nil
}

type nopEvents struct{}

func (nopEvents) LogUser(ctx context.Context, userID int64, eventType string, metadata map[string]any) {
}

func newTestService(t *testing.T, tg telegram.Client, access AccessChecker) *Service {
	t.Helper()
	return newTestServiceWithPasses(t, tg, access, &stubPasses{})
}

func newTestServiceWithPasses(t *testing.T, tg telegram.Client, access AccessChecker, passes PassBurner) *Service {
	t.Helper()
	cfg := &cfgpkg.Config{InviteTTLMinutes: 5}
	cfg.Telegram.GroupChatID = -100123
	return New(cfg, zap.NewNop().Sugar(), metrics.New("test"), tg, access, passes, nopEvents{})
}

func withShortSchedule(t *testing.T, slots int) {
	t.Helper()
	old := BackoffSchedule
	BackoffSchedule = make([]time.Duration, slots)
	for i := range BackoffSchedule {
		BackoffSchedule[i] = time.Millisecond
	}
	t.Cleanup(func() { BackoffSchedule = old })
}

func TestFinalize_SucceedsFirstAttempt(t *testing.T) {
	tg := &stubClient{}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	outcome, err := svc.Finalize(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, OutcomeGranted, outcome)
	require.Equal(t, 1, tg.approveCalls())
}

func TestFinalize_RetriesThenSucceeds(t *testing.T) {
	withShortSchedule(t, 4)
	tg := &stubClient{approveErrs: []error{
		&telegram.APIError{Code: 500, Description: "internal"},
		&telegram.RetryAfterError{After: time.Millisecond},
	}}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	outcome, err := svc.Finalize(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, OutcomeGranted, outcome)
	require.Equal(t, 3, tg.approveCalls())
}

func TestFinalize_FatalErrorStopsImmediately(t *testing.T) {
	withShortSchedule(t, 4)
	tests := []struct {
		name string
		err  error
	}{
		{"no join request", telegram.ErrNoJoinRequest},
		{"forbidden", &telegram.ForbiddenError{Description: "bot was blocked"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := &stubClient{approveErrs: []error{tt.err}}
			svc := newTestService(t, tg, &stubAccess{ok: true})

			outcome, err := svc.Finalize(context.Background(), 42)
			require.Error(t, err)
			require.Equal(t, OutcomeFailed, outcome)
			require.Equal(t, 1, tg.approveCalls())
		})
	}
}

func TestFinalize_ExhaustionLeavesPending(t *testing.T) {
	withShortSchedule(t, 3)
	errs := make([]error, 3)
	for i := range errs {
		errs[i] = &telegram.APIError{Code: 502, Description: "bad gateway"}
	}
	tg := &stubClient{approveErrs: errs}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	outcome, err := svc.Finalize(context.Background(), 42)
	require.Error(t, err)
	require.Equal(t, OutcomePending, outcome)
	require.Equal(t, 3, tg.approveCalls())
}

func TestFinalize_ContextCancelDuringBackoff(t *testing.T) {
	old := BackoffSchedule
	BackoffSchedule = []time.Duration{time.Hour}
	t.Cleanup(func() { BackoffSchedule = old })

	tg := &stubClient{approveErrs: []error{&telegram.APIError{Code: 500}}}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome, err := svc.Finalize(ctx, 42)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, OutcomePending, outcome)
}

func TestLaunch_SingleFlightPerUser(t *testing.T) {
	old := BackoffSchedule
	BackoffSchedule = []time.Duration{50 * time.Millisecond}
	t.Cleanup(func() { BackoffSchedule = old })

	tg := &stubClient{approveErrs: []error{&telegram.APIError{Code: 500}}}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	require.True(t, svc.Launch(42))
	require.False(t, svc.Launch(42), "second launch for the same user must be absorbed")
	require.True(t, svc.Launch(43), "other users are unaffected")
}

func TestEnter_NoAccess(t *testing.T) {
	svc := newTestService(t, &stubClient{}, &stubAccess{ok: false})

	_, err := svc.Enter(context.Background(), 42)
	require.ErrorIs(t, err, ErrNoAccess)
}

func TestEnter_OneShotPassAdmitsOnce(t *testing.T) {
	passes := &stubPasses{held: true}
	svc := newTestServiceWithPasses(t, &stubClient{}, &stubAccess{ok: false}, passes)

	res, err := svc.Enter(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, res.Approved)
	require.Equal(t, 1, passes.burned)

	_, err = svc.Enter(context.Background(), 42)
	require.ErrorIs(t, err, ErrNoAccess, "a consumed pass must not admit again")
}

func TestEnter_ApprovesPendingRequest(t *testing.T) {
	svc := newTestService(t, &stubClient{}, &stubAccess{ok: true})

	res, err := svc.Enter(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, res.Approved)
	require.Empty(t, res.InviteLink)
}

func TestEnter_FallsBackToInviteLink(t *testing.T) {
	tg := &stubClient{
		approveErrs: []error{telegram.ErrNoJoinRequest},
		inviteLink:  "https://t.me/+abcdef",
	}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	res, err := svc.Enter(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, res.Approved)
	require.Equal(t, "https://t.me/+abcdef", res.InviteLink)
}

func TestEnter_OtherApproveErrorIsPropagated(t *testing.T) {
	tg := &stubClient{approveErrs: []error{&telegram.APIError{Code: 500, Description: "boom"}}}
	svc := newTestService(t, tg, &stubAccess{ok: true})

	_, err := svc.Enter(context.Background(), 42)
	require.Error(t, err)
	var apiErr *telegram.APIError
	require.True(t, errors.As(err, &apiErr))
}
