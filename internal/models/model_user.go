package models

import "time"

type UserStatus string

const (
	UserStatusActive      UserStatus = "active"
	UserStatusDeactivated UserStatus = "deactivated"
)

// User mirrors the platform account. Created on first interaction and never
// deleted, only deactivated.
type User struct {
	UserID       int64      `gorm:"column:user_id;primary_key;autoIncrement:false" json:"user_id"`
	Username     *string    `gorm:"column:username;type:varchar(128)" json:"username"`
	FirstName    *string    `gorm:"column:first_name;type:varchar(128)" json:"first_name"`
	LastName     *string    `gorm:"column:last_name;type:varchar(128)" json:"last_name"`
	LanguageCode string     `gorm:"column:language_code;type:varchar(16);default:'en'" json:"language_code"`
	Status       UserStatus `gorm:"column:status;type:varchar(32);not null;default:'active'" json:"status"`
	LastSeenAt   time.Time  `gorm:"column:last_seen_at" json:"last_seen_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }
