package ledger

import (
	"time"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/types"
)

// ExtensionInput is everything the window computation may look at. Keeping
// it a pure function of (current row, payment kind, now) lets two concurrent
// payments disagree only on ordering, never on arithmetic.
type ExtensionInput struct {
	Current *models.Subscription
	Kind    types.PaymentKind
	// ExpiryHint is the platform-reported expiry for recurring charges.
	ExpiryHint    *time.Time
	Now           time.Time
	PlanDuration  time.Duration
	RenewalPeriod time.Duration
}

// NextWindow computes the access window an accepted payment yields.
//
// One-time payments stack: the new expiry is plan_duration past whichever is
// later, now or the current expiry. They never downgrade a recurring
// subscription's type. Recurring charges trust the platform-reported expiry
// when present, otherwise extend by the configured renewal period.
func NextWindow(in ExtensionInput) (expiresAt time.Time, isRecurring bool) {
	base := in.Now
	if in.Current != nil && in.Current.ExpiresAt != nil && in.Current.ExpiresAt.After(base) {
		base = *in.Current.ExpiresAt
	}

	if in.Kind.Recurring() {
		if in.ExpiryHint != nil {
			return *in.ExpiryHint, true
		}
		return base.Add(in.RenewalPeriod), true
	}

	isRecurring = in.Current != nil && in.Current.IsRecurring
	return base.Add(in.PlanDuration), isRecurring
}

// GraceUntil derives the grace deadline for a subscription whose expiry has
// passed.
func GraceUntil(expiresAt time.Time, gracePeriod time.Duration) time.Time {
	return expiresAt.Add(gracePeriod)
}
