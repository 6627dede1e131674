package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/lumenloft/doorman/pkg/types"
)

// Subscription is the per-user access window. The partial unique index keeps
// at most one open (pending/active/grace) row per user; a second payment
// extends expires_at instead of creating a parallel row.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID int64                    `gorm:"column:user_id;not null;index:idx_subscriptions_user_id;uniqueIndex:uniq_subscriptions_open_user,where:status IN ('pending','active','grace')" json:"user_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// ExpiresAt is the access end. Nil only while status=pending.
	ExpiresAt *time.Time `gorm:"column:expires_at;default:null;index:idx_subscriptions_expires_at" json:"expires_at"`
	// GraceUntil is set only while status=grace.
	GraceUntil     *time.Time `gorm:"column:grace_until;default:null" json:"grace_until"`
	GraceStartedAt *time.Time `gorm:"column:grace_started_at;default:null" json:"grace_started_at"`
	IsRecurring    bool       `gorm:"column:is_recurring;not null;default:false" json:"is_recurring"`
	// RecurringChargeID is the charge id the platform needs to stop future
	// charges; stored on the first recurring payment.
	RecurringChargeID *string `gorm:"column:recurring_charge_id;type:varchar(128)" json:"recurring_charge_id"`
	// CancelledAt marks auto-renew disabled. Access persists until
	// ExpiresAt/GraceUntil pass, exactly as for a non-cancelled row.
	CancelledAt    *time.Time        `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	ReminderSentAt *time.Time        `gorm:"column:reminder_sent_at;default:null" json:"reminder_sent_at"`
	Extra          datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// AccessibleAt reports whether the row still grants group access at t.
func (s *Subscription) AccessibleAt(t time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case types.SubscriptionStatusActive:
		return s.ExpiresAt != nil && s.ExpiresAt.After(t)
	case types.SubscriptionStatusGrace:
		return s.GraceUntil != nil && s.GraceUntil.After(t)
	}
	return false
}

// Info projects the row onto the read-path view.
func (s *Subscription) Info() *types.SubscriptionInfo {
	if s == nil {
		return nil
	}
	return &types.SubscriptionInfo{
		Status:      s.Status,
		ExpiresAt:   s.ExpiresAt,
		GraceUntil:  s.GraceUntil,
		IsRecurring: s.IsRecurring,
		CancelledAt: s.CancelledAt,
	}
}
