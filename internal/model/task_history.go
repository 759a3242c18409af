package model

import "time"

// TaskHistory records one status transition of a task.
type TaskHistory struct {
	ID        uint       `gorm:"primaryKey"`
	TaskID    uint       `gorm:"index;not null"`
	OldStatus TaskStatus `gorm:"type:varchar(16);not null"`
	NewStatus TaskStatus `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time
}
