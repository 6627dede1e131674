package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenloft/doorman/internal/models"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/metrics"
	"github.com/lumenloft/doorman/pkg/tool"
	"github.com/lumenloft/doorman/pkg/types"
)

// ErrNotFound is returned when a user has no open subscription row.
var ErrNotFound = errors.New("ledger: subscription not found")

// openStatuses are the states covered by the one-open-row-per-user index.
var openStatuses = []types.SubscriptionStatus{
	types.SubscriptionStatusPending,
	types.SubscriptionStatusActive,
	types.SubscriptionStatusGrace,
}

// Transition describes what Apply (or a sweep mutation) did to a row.
type Transition struct {
	UserID    int64                    `json:"user_id"`
	From      types.SubscriptionStatus `json:"from"`
	To        types.SubscriptionStatus `json:"to"`
	ExpiresAt *time.Time               `json:"expires_at"`
	// Applied is false when the payment was already recorded and the call
	// was an idempotent re-application.
	Applied bool `json:"applied"`
}

// Service owns all Subscription writes. No other component may transition
// status.
type Service struct {
	cfg *cfgpkg.Config
	db  *gorm.DB
	log *zap.SugaredLogger
	m   *metrics.Metrics
}

func New(cfg *cfgpkg.Config, db *gorm.DB, log *zap.SugaredLogger, m *metrics.Metrics) *Service {
	return &Service{cfg: cfg, db: db, log: log, m: m}
}

// Apply folds an accepted payment into the user's access window. Runs as a
// row-locked read-modify-write so two concurrent payments for the same user
// can never both extend from the same stale expiry.
//
// inserted=false means the payment was already recorded (duplicate delivery
// or a finalization retry): the ledger must not extend again, but the caller
// still gets the current state so it can re-attempt access finalization.
func (s *Service) Apply(ctx context.Context, p *models.Payment, inserted bool) (*Transition, error) {
	var tr *Transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockOpenRow(tx, p.UserID)
		if err != nil {
			return err
		}

		if !inserted {
			tr = noopTransition(p.UserID, current)
			return nil
		}

		now := time.Now().UTC()
		if p.CreatedAt.After(now) {
			now = p.CreatedAt
		}
		expiresAt, isRecurring := NextWindow(ExtensionInput{
			Current:       current,
			Kind:          p.Kind,
			ExpiryHint:    p.ExpiryHint,
			Now:           now,
			PlanDuration:  s.cfg.PlanDuration(),
			RenewalPeriod: s.cfg.RenewalPeriod(),
		})

		from := types.SubscriptionStatusPending
		var before *models.Subscription
		sub := current
		if sub == nil {
			sub = &models.Subscription{
				ID:     tool.GenerateUUIDV7(),
				UserID: p.UserID,
			}
		} else {
			from = sub.Status
			cp := *sub
			before = &cp
		}

		sub.Status = types.SubscriptionStatusActive
		sub.ExpiresAt = &expiresAt
		sub.GraceUntil = nil
		sub.GraceStartedAt = nil
		sub.IsRecurring = isRecurring
		if p.Kind.Recurring() && p.ChargeID != nil {
			sub.RecurringChargeID = p.ChargeID
		}
		// A fresh payment re-arms a previously cancelled subscription.
		if p.Kind == types.PaymentKindRecurringInitial {
			sub.CancelledAt = nil
		}

		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		if err := tx.Model(&models.Payment{}).Where("id = ?", p.ID).
			Update("subscription_id", sub.ID).Error; err != nil {
			return fmt.Errorf("backlink payment: %w", err)
		}

		reason := types.SubscriptionChangeReasonPurchase
		if p.Kind == types.PaymentKindRecurringRenewal {
			reason = types.SubscriptionChangeReasonRenewal
		}
		s.logChange(ctx, before, sub, reason, datatypes.JSONMap{"payment_id": p.ID})
		s.m.SubscriptionTransitions.WithLabelValues(string(from), string(sub.Status)).Inc()

		tr = &Transition{
			UserID:    p.UserID,
			From:      from,
			To:        sub.Status,
			ExpiresAt: sub.ExpiresAt,
			Applied:   true,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply payment %s: %w", p.ID, err)
	}
	return tr, nil
}

func noopTransition(userID int64, current *models.Subscription) *Transition {
	tr := &Transition{UserID: userID, Applied: false}
	if current != nil {
		tr.From = current.Status
		tr.To = current.Status
		tr.ExpiresAt = current.ExpiresAt
	}
	return tr
}

func lockOpenRow(tx *gorm.DB, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status IN ?", userID, openStatuses).
		Order("expires_at DESC NULLS LAST").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock subscription row: %w", err)
	}
	return &sub, nil
}

// EnsurePending creates the pending row a user gets on their first payment
// attempt (offer shown, invoice sent). Idempotent: an existing open row wins.
func (s *Service) EnsurePending(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockOpenRow(tx, userID)
		if err != nil || current != nil {
			return err
		}
		sub := &models.Subscription{
			ID:     tool.GenerateUUIDV7(),
			UserID: userID,
			Status: types.SubscriptionStatusPending,
		}
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("create pending subscription: %w", err)
		}
		return nil
	})
}

// GetStatus is the user-facing read path.
func (s *Service) GetStatus(ctx context.Context, userID int64) (*types.SubscriptionInfo, error) {
	sub, err := s.openRow(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := sub.Info()
	// Cancellation is presented as its own status while the window is still
	// running; the stored status keeps driving the time-based lifecycle.
	if sub.CancelledAt != nil && sub.Status.Open() {
		info.Status = types.SubscriptionStatusCancelled
	}
	return info, nil
}

// HasAccess reports whether the user currently holds a valid window
// (active, or grace not yet over).
func (s *Service) HasAccess(ctx context.Context, userID int64) (bool, error) {
	sub, err := s.openRow(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.AccessibleAt(time.Now().UTC()), nil
}

func (s *Service) openRow(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, openStatuses).
		Order("expires_at DESC NULLS LAST").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &sub, nil
}

// Cancel marks auto-renew disabled. The access window is untouched: expiry
// and grace run exactly as for a non-cancelled subscription. Returns the row
// so callers can issue the platform stop-charges call.
func (s *Service) Cancel(ctx context.Context, userID int64) (*models.Subscription, error) {
	var out *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockOpenRow(tx, userID)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrNotFound
		}
		if sub.CancelledAt != nil {
			out = sub
			return nil
		}
		before := *sub
		now := time.Now().UTC()
		sub.CancelledAt = &now
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("save cancellation: %w", err)
		}
		s.logChange(ctx, &before, sub, types.SubscriptionChangeReasonCancel, nil)
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindDueForGrace lists active rows whose expiry has passed.
func (s *Service) FindDueForGrace(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", types.SubscriptionStatusActive, now).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("find due for grace: %w", err)
	}
	return subs, nil
}

// FindDueForExpiry lists grace rows whose grace deadline has passed.
func (s *Service) FindDueForExpiry(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND grace_until < ?", types.SubscriptionStatusGrace, now).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("find due for expiry: %w", err)
	}
	return subs, nil
}

// MarkGrace moves an active row into its grace window. Guarded by the
// current status so a concurrent payment that re-activated the row wins.
func (s *Service) MarkGrace(ctx context.Context, sub *models.Subscription, now time.Time) (*Transition, error) {
	if sub.ExpiresAt == nil {
		return nil, fmt.Errorf("subscription %s has no expiry", sub.ID)
	}
	before := *sub
	graceUntil := GraceUntil(*sub.ExpiresAt, s.cfg.GracePeriod())

	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, types.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":           types.SubscriptionStatusGrace,
			"grace_until":      graceUntil,
			"grace_started_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("mark grace: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	sub.Status = types.SubscriptionStatusGrace
	sub.GraceUntil = &graceUntil
	sub.GraceStartedAt = &now
	s.logChange(ctx, &before, sub, types.SubscriptionChangeReasonGrace, nil)
	s.m.SubscriptionTransitions.WithLabelValues(
		string(types.SubscriptionStatusActive), string(types.SubscriptionStatusGrace)).Inc()

	return &Transition{
		UserID:    sub.UserID,
		From:      types.SubscriptionStatusActive,
		To:        types.SubscriptionStatusGrace,
		ExpiresAt: sub.ExpiresAt,
		Applied:   true,
	}, nil
}

// MarkExpired closes a grace row whose deadline passed.
func (s *Service) MarkExpired(ctx context.Context, sub *models.Subscription) (*Transition, error) {
	before := *sub
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, types.SubscriptionStatusGrace).
		Update("status", types.SubscriptionStatusExpired)
	if res.Error != nil {
		return nil, fmt.Errorf("mark expired: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	sub.Status = types.SubscriptionStatusExpired
	s.logChange(ctx, &before, sub, types.SubscriptionChangeReasonExpire, nil)
	s.m.SubscriptionTransitions.WithLabelValues(
		string(types.SubscriptionStatusGrace), string(types.SubscriptionStatusExpired)).Inc()

	return &Transition{
		UserID:    sub.UserID,
		From:      types.SubscriptionStatusGrace,
		To:        types.SubscriptionStatusExpired,
		ExpiresAt: sub.ExpiresAt,
		Applied:   true,
	}, nil
}

// FindDueForReminder lists non-recurring active rows expiring within the
// reminder window that have not been reminded in the last day.
func (s *Service) FindDueForReminder(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	until := now.Add(time.Duration(s.cfg.DaysBeforeExpire) * 24 * time.Hour)
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND is_recurring = false AND expires_at BETWEEN ? AND ?",
			types.SubscriptionStatusActive, now, until).
		Where("reminder_sent_at IS NULL OR reminder_sent_at < ?", now.Add(-24*time.Hour)).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("find due for reminder: %w", err)
	}
	return subs, nil
}

func (s *Service) MarkReminderSent(ctx context.Context, subID string, now time.Time) error {
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subID).
		Update("reminder_sent_at", now).Error; err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// logChange writes the before/after snapshot asynchronously; errors are
// logged but never fail the mutation.
func (s *Service) logChange(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra datatypes.JSONMap) {
	if extra == nil {
		extra = datatypes.JSONMap{}
	}
	entry := &models.SubscriptionLog{
		ID:     tool.GenerateUUIDV7(),
		UserID: after.UserID,
		Reason: reason,
		Before: datatypes.NewJSONType(before),
		After:  datatypes.NewJSONType(after),
		Extra:  extra,
	}
	go func() {
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}
