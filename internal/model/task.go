package model

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// Statuses lists every status in digest order.
var Statuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// Label is the human-readable name used in digests.
func (s TaskStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts a status name; empty input means PENDING.
func ParseStatus(raw string) (TaskStatus, error) {
	if raw == "" {
		return StatusPending, nil
	}
	s := TaskStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Task is a single to-do item. Priorities are unique among a user's active
// (not deleted, not completed) tasks.
type Task struct {
	ID          uint       `gorm:"primaryKey"`
	UserID      uint       `gorm:"index:idx_task_user_priority;not null"`
	Title       string     `gorm:"not null"`
	Description string
	Priority    int        `gorm:"index:idx_task_user_priority;not null"`
	Completed   bool       `gorm:"not null;default:false"`
	Status      TaskStatus `gorm:"type:varchar(16);not null;default:PENDING"`
	Deleted     bool       `gorm:"not null;default:false;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
