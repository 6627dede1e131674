package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusGrace     SubscriptionStatus = "grace"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Open reports whether the status still holds (or may regain) group access.
// Pending rows exist before the first accepted payment; cancelled rows keep
// access until their expiry passes, so they are handled separately.
func (s SubscriptionStatus) Open() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusGrace:
		return true
	}
	return false
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonPurchase  SubscriptionChangeReason = "purchase"
	SubscriptionChangeReasonRenewal   SubscriptionChangeReason = "renewal"
	SubscriptionChangeReasonReconcile SubscriptionChangeReason = "reconcile"
	SubscriptionChangeReasonCancel    SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonGrace     SubscriptionChangeReason = "grace"
	SubscriptionChangeReasonExpire    SubscriptionChangeReason = "expire"
)

// SubscriptionInfo is the read-path view of a user's access window.
type SubscriptionInfo struct {
	Status      SubscriptionStatus `json:"status"`
	ExpiresAt   *time.Time         `json:"expires_at"`
	GraceUntil  *time.Time         `json:"grace_until"`
	IsRecurring bool               `json:"is_recurring"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
}
