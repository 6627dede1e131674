package models

import "time"

// WhitelistEntry is an externally-managed exemption: while unrevoked, the
// lifecycle sweep never revokes the user's access regardless of
// subscription status.
type WhitelistEntry struct {
	TelegramID int64      `gorm:"column:telegram_id;primary_key;autoIncrement:false" json:"telegram_id"`
	Source     string     `gorm:"column:source;type:varchar(64);not null;default:'manual'" json:"source"`
	Note       *string    `gorm:"column:note;type:varchar(512)" json:"note"`
	GrantedAt  time.Time  `gorm:"column:granted_at;not null" json:"granted_at"`
	RevokedAt  *time.Time `gorm:"column:revoked_at;default:null" json:"revoked_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (WhitelistEntry) TableName() string { return "whitelist" }

func (w *WhitelistEntry) Active() bool { return w != nil && w.RevokedAt == nil }
