package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/models"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/types"
)

type stubLedger struct {
	subs []*models.Subscription

	reminderDue   []*models.Subscription
	remindersSent []string

	revokePending []*models.Subscription
	flagged       []string
	cleared       []string
}

func (s *stubLedger) FindDueForGrace(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var due []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusActive && sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
			due = append(due, sub)
		}
	}
	return due, nil
}

func (s *stubLedger) FindDueForExpiry(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var due []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusGrace && sub.GraceUntil != nil && sub.GraceUntil.Before(now) {
			due = append(due, sub)
		}
	}
	return due, nil
}

func (s *stubLedger) MarkGrace(ctx context.Context, sub *models.Subscription, now time.Time) (*ledger.Transition, error) {
	if sub.Status != types.SubscriptionStatusActive {
		return nil, nil
	}
	graceUntil := sub.ExpiresAt.Add(48 * time.Hour)
	sub.Status = types.SubscriptionStatusGrace
	sub.GraceUntil = &graceUntil
	sub.GraceStartedAt = &now
	return &ledger.Transition{
		UserID: sub.UserID,
		From:   types.SubscriptionStatusActive,
		To:     types.SubscriptionStatusGrace,
	}, nil
}

func (s *stubLedger) MarkExpired(ctx context.Context, sub *models.Subscription) (*ledger.Transition, error) {
	if sub.Status != types.SubscriptionStatusGrace {
		return nil, nil
	}
	sub.Status = types.SubscriptionStatusExpired
	return &ledger.Transition{
		UserID: sub.UserID,
		From:   types.SubscriptionStatusGrace,
		To:     types.SubscriptionStatusExpired,
	}, nil
}

func (s *stubLedger) FindDueForReminder(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	return s.reminderDue, nil
}

func (s *stubLedger) MarkReminderSent(ctx context.Context, subID string, now time.Time) error {
	s.remindersSent = append(s.remindersSent, subID)
	return nil
}

func (s *stubLedger) MarkRevokePending(ctx context.Context, subID string) error {
	s.flagged = append(s.flagged, subID)
	return nil
}

func (s *stubLedger) ClearRevokePending(ctx context.Context, subID string) error {
	s.cleared = append(s.cleared, subID)
	return nil
}

func (s *stubLedger) FindRevokePending(ctx context.Context) ([]*models.Subscription, error) {
	return s.revokePending, nil
}

type stubWhitelist struct {
	exempt map[int64]bool
	err    error
}

func (s *stubWhitelist) IsExempt(ctx context.Context, telegramID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.exempt[telegramID], nil
}

type stubRevoker struct {
	banned []int64
	errFor map[int64]error
}

func (s *stubRevoker) BanChatMember(ctx context.Context, chatID, userID int64) error {
	if err, ok := s.errFor[userID]; ok {
		return err
	}
	s.banned = append(s.banned, userID)
	return nil
}

type stubQueue struct {
	queued []struct {
		UserID int64
		Type   models.NotificationType
	}
}

func (s *stubQueue) Enqueue(ctx context.Context, userID int64, typ models.NotificationType, metadata map[string]any) error {
	s.queued = append(s.queued, struct {
		UserID int64
		Type   models.NotificationType
	}{userID, typ})
	return nil
}

func (s *stubQueue) typesFor(userID int64) []models.NotificationType {
	var out []models.NotificationType
	for _, q := range s.queued {
		if q.UserID == userID {
			out = append(out, q.Type)
		}
	}
	return out
}

type openLocker struct{}

func (openLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

func newTestSweeper(led SubscriptionLedger, wl ExemptionChecker, tg AccessRevoker, queue Enqueuer) *Service {
	cfg := &cfgpkg.Config{GraceHours: 48, DaysBeforeExpire: 3}
	cfg.Telegram.GroupChatID = -100123
	cfg.Reconcile.LeaseTTL = 10 * time.Minute
	return New(cfg, zap.NewNop().Sugar(), led, wl, tg, queue, openLocker{})
}

func activeSub(id string, userID int64, expiresAt time.Time) *models.Subscription {
	return &models.Subscription{
		ID:        id,
		UserID:    userID,
		Status:    types.SubscriptionStatusActive,
		ExpiresAt: &expiresAt,
	}
}

func TestSweep_FullLifecycle(t *testing.T) {
	expiresAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	led := &stubLedger{subs: []*models.Subscription{activeSub("sub-1", 42, expiresAt)}}
	wl := &stubWhitelist{}
	tg := &stubRevoker{}
	queue := &stubQueue{}
	svc := newTestSweeper(led, wl, tg, queue)

	// Day after expiry: the row enters grace, access is kept.
	res, err := svc.Sweep(context.Background(), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, res.ToGrace)
	require.Zero(t, res.ToExpired)
	require.Empty(t, tg.banned)
	require.Equal(t, types.SubscriptionStatusGrace, led.subs[0].Status)
	require.Equal(t, expiresAt.Add(48*time.Hour), *led.subs[0].GraceUntil)
	require.Equal(t, []models.NotificationType{models.NotificationTypeGraceStarted}, queue.typesFor(42))

	// Re-running inside grace changes nothing.
	res, err = svc.Sweep(context.Background(), time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, res.ToGrace)
	require.Zero(t, res.ToExpired)

	// Past the grace deadline: expired, access revoked.
	res, err = svc.Sweep(context.Background(), time.Date(2025, 1, 3, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, res.ToExpired)
	require.Equal(t, 1, res.Revoked)
	require.Equal(t, []int64{42}, tg.banned)
	require.Equal(t, types.SubscriptionStatusExpired, led.subs[0].Status)
	require.Equal(t,
		[]models.NotificationType{models.NotificationTypeGraceStarted, models.NotificationTypeExpired},
		queue.typesFor(42))
}

func TestSweep_WhitelistedUserKeepsAccess(t *testing.T) {
	graceUntil := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	led := &stubLedger{subs: []*models.Subscription{{
		ID:         "sub-1",
		UserID:     42,
		Status:     types.SubscriptionStatusGrace,
		GraceUntil: &graceUntil,
	}}}
	tg := &stubRevoker{}
	svc := newTestSweeper(led, &stubWhitelist{exempt: map[int64]bool{42: true}}, tg, &stubQueue{})

	res, err := svc.Sweep(context.Background(), graceUntil.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.ToExpired)
	require.Zero(t, res.Revoked)
	require.Empty(t, tg.banned)
	// The row still expires; only the revocation is skipped.
	require.Equal(t, types.SubscriptionStatusExpired, led.subs[0].Status)
}

func TestSweep_FailedRevocationIsFlaggedAndRetried(t *testing.T) {
	graceUntil := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	led := &stubLedger{subs: []*models.Subscription{{
		ID:         "sub-1",
		UserID:     42,
		Status:     types.SubscriptionStatusGrace,
		GraceUntil: &graceUntil,
	}}}
	tg := &stubRevoker{errFor: map[int64]error{42: errors.New("telegram down")}}
	svc := newTestSweeper(led, &stubWhitelist{}, tg, &stubQueue{})

	res, err := svc.Sweep(context.Background(), graceUntil.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.ToExpired)
	require.Zero(t, res.Revoked)
	require.Equal(t, []string{"sub-1"}, led.flagged)

	// Next sweep: the platform recovered, the retry lands and clears the flag.
	led.revokePending = []*models.Subscription{led.subs[0]}
	tg.errFor = nil
	res, err = svc.Sweep(context.Background(), graceUntil.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.Revoked)
	require.Equal(t, 1, res.RevokeRetried)
	require.Equal(t, []int64{42}, tg.banned)
	require.Equal(t, []string{"sub-1"}, led.cleared)
}

func TestSendReminders(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(2 * 24 * time.Hour)
	led := &stubLedger{reminderDue: []*models.Subscription{
		activeSub("sub-1", 42, expiresAt),
	}}
	queue := &stubQueue{}
	svc := newTestSweeper(led, &stubWhitelist{}, &stubRevoker{}, queue)

	queued, err := svc.SendReminders(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, queued)
	require.Equal(t, []models.NotificationType{models.NotificationTypeReminder}, queue.typesFor(42))
	require.Equal(t, []string{"sub-1"}, led.remindersSent)
}
