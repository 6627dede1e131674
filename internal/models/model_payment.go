package models

import (
	"time"

	"github.com/lumenloft/doorman/pkg/types"
)

// Payment is an immutable accepted-payment fact. The two natural keys carry
// the idempotency contract: the live webhook path and the reconciliation
// scanner race to insert the same fact, and the unique indexes (not an
// application-level existence check) decide the winner. At least one of
// ChargeID and ExternalTxID is always non-null.
type Payment struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID int64  `gorm:"column:user_id;not null;index:idx_payments_user_id" json:"user_id"`
	// ChargeID is the platform payment charge id delivered with live events.
	ChargeID *string `gorm:"column:charge_id;type:varchar(128);uniqueIndex:uniq_payments_charge_id" json:"charge_id"`
	// ExternalTxID is the id the transaction carries in the external ledger.
	ExternalTxID *string           `gorm:"column:external_tx_id;type:varchar(128);uniqueIndex:uniq_payments_external_tx_id" json:"external_tx_id"`
	Amount       int64             `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Kind         types.PaymentKind `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	IsRecurring  bool              `gorm:"column:is_recurring;not null;default:false" json:"is_recurring"`
	// ExpiryHint is the platform-reported subscription expiry, present on
	// recurring charges delivered live.
	ExpiryHint     *time.Time `gorm:"column:expiry_hint;default:null" json:"expiry_hint"`
	InvoicePayload *string    `gorm:"column:invoice_payload;type:varchar(256)" json:"invoice_payload"`
	// SubscriptionID backlinks the subscription row this payment extended.
	SubscriptionID *string   `gorm:"column:subscription_id;type:uuid" json:"subscription_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Payment) TableName() string { return "payments" }
