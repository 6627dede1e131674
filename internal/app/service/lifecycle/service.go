package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/internal/platform/lease"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/logctx"
)

const leaseName = "sweep"

// SubscriptionLedger is the slice of the ledger the sweep drives.
type SubscriptionLedger interface {
	FindDueForGrace(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	FindDueForExpiry(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	MarkGrace(ctx context.Context, sub *models.Subscription, now time.Time) (*ledger.Transition, error)
	MarkExpired(ctx context.Context, sub *models.Subscription) (*ledger.Transition, error)
	FindDueForReminder(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	MarkReminderSent(ctx context.Context, subID string, now time.Time) error
	MarkRevokePending(ctx context.Context, subID string) error
	ClearRevokePending(ctx context.Context, subID string) error
	FindRevokePending(ctx context.Context) ([]*models.Subscription, error)
}

// ExemptionChecker shields whitelisted users from revocation.
type ExemptionChecker interface {
	IsExempt(ctx context.Context, telegramID int64) (bool, error)
}

// AccessRevoker is the platform call that removes a user from the group.
type AccessRevoker interface {
	BanChatMember(ctx context.Context, chatID, userID int64) error
}

// Enqueuer accepts user messages for the async notification drain.
type Enqueuer interface {
	Enqueue(ctx context.Context, userID int64, typ models.NotificationType, metadata map[string]any) error
}

// SweepResult summarizes one lifecycle pass.
type SweepResult struct {
	ToGrace       int  `json:"to_grace"`
	ToExpired     int  `json:"to_expired"`
	Revoked       int  `json:"revoked"`
	RevokeRetried int  `json:"revoke_retried"`
	LeaseHeld     bool `json:"lease_held,omitempty"`
}

// Service drives the time-based half of the subscription state machine:
// active rows past expiry enter grace, grace rows past their deadline expire
// and lose access. State transitions are the authoritative effect; messages
// and platform revocations are best-effort and retried where detectable.
type Service struct {
	cfg    *cfgpkg.Config
	log    *zap.SugaredLogger
	led    SubscriptionLedger
	wl     ExemptionChecker
	tg     AccessRevoker
	queue  Enqueuer
	locker lease.Locker
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger,
	led SubscriptionLedger, wl ExemptionChecker, tg AccessRevoker,
	queue Enqueuer, locker lease.Locker) *Service {
	return &Service{cfg: cfg, log: log, led: led, wl: wl, tg: tg, queue: queue, locker: locker}
}

// Sweep runs one pass at the given instant. Individual row failures are
// logged and skipped so one bad row never starves the rest of the batch.
func (s *Service) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	release, ok, err := s.locker.Acquire(ctx, leaseName, s.cfg.Reconcile.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Infow("sweep skipped, lease held elsewhere")
		return &SweepResult{LeaseHeld: true}, nil
	}
	defer release()

	res := &SweepResult{}
	s.sweepToGrace(ctx, now, res)
	s.sweepToExpired(ctx, now, res)
	s.retryRevocations(ctx, res)

	log.Infow("sweep finished",
		"to_grace", res.ToGrace, "to_expired", res.ToExpired,
		"revoked", res.Revoked, "revoke_retried", res.RevokeRetried)
	return res, nil
}

func (s *Service) sweepToGrace(ctx context.Context, now time.Time, res *SweepResult) {
	log := logctx.FromCtx(ctx, s.log)
	due, err := s.led.FindDueForGrace(ctx, now)
	if err != nil {
		log.Errorw("sweep grace query failed", "err", err)
		return
	}
	for _, sub := range due {
		tr, err := s.led.MarkGrace(ctx, sub, now)
		if err != nil {
			log.Errorw("mark grace failed", "subscription_id", sub.ID, "err", err)
			continue
		}
		if tr == nil {
			// A concurrent payment re-activated the row; it is no longer due.
			continue
		}
		res.ToGrace++
		meta := map[string]any{}
		if sub.GraceUntil != nil {
			meta["grace_until"] = sub.GraceUntil.Format(time.RFC3339)
		}
		if err := s.queue.Enqueue(ctx, sub.UserID, models.NotificationTypeGraceStarted, meta); err != nil {
			log.Warnw("enqueue grace notification failed", "user_id", sub.UserID, "err", err)
		}
	}
}

func (s *Service) sweepToExpired(ctx context.Context, now time.Time, res *SweepResult) {
	log := logctx.FromCtx(ctx, s.log)
	due, err := s.led.FindDueForExpiry(ctx, now)
	if err != nil {
		log.Errorw("sweep expiry query failed", "err", err)
		return
	}
	for _, sub := range due {
		tr, err := s.led.MarkExpired(ctx, sub)
		if err != nil {
			log.Errorw("mark expired failed", "subscription_id", sub.ID, "err", err)
			continue
		}
		if tr == nil {
			continue
		}
		res.ToExpired++

		if s.revoke(ctx, sub) {
			res.Revoked++
		}
		if err := s.queue.Enqueue(ctx, sub.UserID, models.NotificationTypeExpired, nil); err != nil {
			log.Warnw("enqueue expiry notification failed", "user_id", sub.UserID, "err", err)
		}
	}
}

// revoke removes the user from the group unless exempt. On failure the row is
// flagged so the next sweep retries. Returns whether access was revoked now.
func (s *Service) revoke(ctx context.Context, sub *models.Subscription) bool {
	log := logctx.FromCtx(ctx, s.log).With("user_id", sub.UserID)

	exempt, err := s.wl.IsExempt(ctx, sub.UserID)
	if err != nil {
		log.Errorw("whitelist check failed, deferring revocation", "err", err)
		s.flagRevokePending(ctx, sub.ID)
		return false
	}
	if exempt {
		log.Infow("revocation skipped, user whitelisted")
		return false
	}

	if err := s.tg.BanChatMember(ctx, s.cfg.Telegram.GroupChatID, sub.UserID); err != nil {
		log.Errorw("access revocation failed, will retry next sweep", "err", err)
		s.flagRevokePending(ctx, sub.ID)
		return false
	}
	log.Infow("access revoked")
	return true
}

func (s *Service) flagRevokePending(ctx context.Context, subID string) {
	if err := s.led.MarkRevokePending(ctx, subID); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("flag revoke pending failed",
			"subscription_id", subID, "err", err)
	}
}

func (s *Service) retryRevocations(ctx context.Context, res *SweepResult) {
	log := logctx.FromCtx(ctx, s.log)
	pending, err := s.led.FindRevokePending(ctx)
	if err != nil {
		log.Errorw("pending revocation query failed", "err", err)
		return
	}
	for _, sub := range pending {
		exempt, err := s.wl.IsExempt(ctx, sub.UserID)
		if err != nil {
			continue
		}
		if !exempt {
			if err := s.tg.BanChatMember(ctx, s.cfg.Telegram.GroupChatID, sub.UserID); err != nil {
				log.Warnw("revocation retry failed", "user_id", sub.UserID, "err", err)
				continue
			}
			res.Revoked++
		}
		res.RevokeRetried++
		if err := s.led.ClearRevokePending(ctx, sub.ID); err != nil {
			log.Errorw("clear revoke pending failed", "subscription_id", sub.ID, "err", err)
		}
	}
}

// SendReminders queues expiry reminders for non-recurring subscriptions
// approaching their end.
func (s *Service) SendReminders(ctx context.Context, now time.Time) (int, error) {
	log := logctx.FromCtx(ctx, s.log)
	due, err := s.led.FindDueForReminder(ctx, now)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, sub := range due {
		meta := map[string]any{}
		if sub.ExpiresAt != nil {
			meta["expires_at"] = sub.ExpiresAt.Format(time.RFC3339)
			meta["days_left"] = int(sub.ExpiresAt.Sub(now).Hours() / 24)
		}
		if err := s.queue.Enqueue(ctx, sub.UserID, models.NotificationTypeReminder, meta); err != nil {
			log.Warnw("enqueue reminder failed", "user_id", sub.UserID, "err", err)
			continue
		}
		if err := s.led.MarkReminderSent(ctx, sub.ID, now); err != nil {
			log.Warnw("mark reminder sent failed", "subscription_id", sub.ID, "err", err)
		}
		queued++
	}
	return queued, nil
}
