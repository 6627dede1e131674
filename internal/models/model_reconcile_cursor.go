package models

import "time"

// ReconcileCursor is the singleton progress marker of the reconciliation
// engine. Always row id=1; advanced monotonically and only after a full
// window has been processed. Operator intervention is the only rewind path.
type ReconcileCursor struct {
	ID       int       `gorm:"column:id;primary_key;autoIncrement:false" json:"id"`
	LastTxAt time.Time `gorm:"column:last_tx_at;not null" json:"last_tx_at"`
	LastTxID *string   `gorm:"column:last_tx_id;type:varchar(128)" json:"last_tx_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReconcileCursor) TableName() string { return "reconcile_cursor" }

const ReconcileCursorID = 1
