package types

type PaymentKind string

const (
	PaymentKindOneTime          PaymentKind = "one_time"
	PaymentKindRecurringInitial PaymentKind = "recurring_initial"
	PaymentKindRecurringRenewal PaymentKind = "recurring_renewal"
)

func (k PaymentKind) Recurring() bool {
	return k == PaymentKindRecurringInitial || k == PaymentKindRecurringRenewal
}

// PaymentEvent is a validated payment signal handed over by the webhook
// transport after it has authenticated the update. At least one of ChargeID
// and ExternalTxID must be set; both may refer to the same real-world event.
type PaymentEvent struct {
	UserID       int64       `json:"user_id" binding:"required"`
	ChargeID     *string     `json:"charge_id"`
	ExternalTxID *string     `json:"external_tx_id"`
	Amount       int64       `json:"amount" binding:"required"`
	Kind         PaymentKind `json:"kind" binding:"required"`
	// RecurringExpiry is the platform-reported expiry for recurring charges.
	RecurringExpiry *int64 `json:"recurring_expiry,omitempty"`
	InvoicePayload  string `json:"invoice_payload,omitempty"`

	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}
