package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"task-manager/internal/cerr"
	"task-manager/internal/model"
)

// ErrPriorityChain means the run of occupied priorities is longer than the
// user has active tasks, which only happens with corrupted data.
var ErrPriorityChain = errors.New("priority chain longer than active task count")

type priorityStore interface {
	CountActive(ctx context.Context, userID uint) (int64, error)
	ActiveAtPriority(ctx context.Context, userID uint, priority int, excludeID uint) ([]model.Task, error)
	IncrementPriorities(ctx context.Context, ids []uint) error
}

// ResequencePriorities frees priority for the task excludeID (0 for a task not
// stored yet). The contiguous run of active tasks starting at priority moves
// up by one, so priorities p..p+k-1 become p+1..p+k and the first gap above
// the run absorbs the shift. Tasks sharing a priority move together. The
// shifted tasks are returned with their new priorities.
//
// Callers must serialize calls per user and run them in the same transaction
// as the write that claims priority.
func ResequencePriorities(ctx context.Context, store priorityStore, userID uint, priority int, excludeID uint) ([]model.Task, error) {
	if priority < 1 {
		return nil, cerr.Invalid("priority must be a positive integer")
	}

	limit, err := store.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	var shifted []model.Task
	for cursor := priority; ; cursor++ {
		if int64(cursor-priority) > limit {
			return nil, fmt.Errorf("resequence user %d from %d: %w", userID, priority, ErrPriorityChain)
		}
		held, err := store.ActiveAtPriority(ctx, userID, cursor, excludeID)
		if err != nil {
			return nil, err
		}
		if len(held) == 0 {
			break
		}
		shifted = append(shifted, held...)
	}
	if len(shifted) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(shifted))
	for _, task := range shifted {
		ids = append(ids, task.ID)
	}
	if err := store.IncrementPriorities(ctx, ids); err != nil {
		return nil, err
	}
	for i := range shifted {
		shifted[i].Priority++
	}

	slog.DebugContext(ctx, "priorities resequenced",
		"user_id", userID,
		"from", priority,
		"shifted", len(shifted),
	)
	return shifted, nil
}
