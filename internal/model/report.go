package model

import "time"

// Report tracks when a user's digest was last sent and the preferred send hour.
type Report struct {
	ID         uint `gorm:"primaryKey"`
	UserID     uint `gorm:"uniqueIndex;not null"`
	User       User
	LastReport *time.Time `gorm:"index"`
	Timing     int        `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
