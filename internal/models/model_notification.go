package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationTypePaymentReceived NotificationType = "payment_received"
	NotificationTypeGraceStarted    NotificationType = "grace_started"
	NotificationTypeExpired         NotificationType = "expired"
	NotificationTypeReminder        NotificationType = "reminder"
)

// Notification is a queued best-effort user message. Sweep side effects
// enqueue here so a failed send is retried on the next drain instead of
// blocking a state transition.
type Notification struct {
	ID        string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    int64             `gorm:"column:user_id;not null;index:idx_notifications_user_id" json:"user_id"`
	Type      NotificationType  `gorm:"column:type;type:varchar(64);not null" json:"type"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	Sent      bool              `gorm:"column:sent;not null;default:false;index:idx_notifications_sent" json:"sent"`
	SentAt    *time.Time        `gorm:"column:sent_at;default:null" json:"sent_at"`
	CreatedAt time.Time         `json:"created_at"`
}

func (Notification) TableName() string { return "notifications_queue" }
