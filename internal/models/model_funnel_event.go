package models

import (
	"time"

	"gorm.io/datatypes"
)

// FunnelEvent is an append-only analytics record (offer shown, payment
// accepted, approve retries, reconcile outcomes).
type FunnelEvent struct {
	ID        string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    *int64            `gorm:"column:user_id;index:idx_funnel_events_user_id" json:"user_id"`
	EventType string            `gorm:"column:event_type;type:varchar(64);not null;index:idx_funnel_events_type" json:"event_type"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func (FunnelEvent) TableName() string { return "funnel_events" }
