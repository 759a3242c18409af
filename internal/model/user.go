package model

import "time"

// User is an account owning tasks and exactly one Report.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;not null"`
	Email          string `gorm:"not null"`
	PasswordHash   string `gorm:"not null"`
	TelegramChatID *int64 `gorm:"uniqueIndex"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
