package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"task-manager/internal/model"
)

// ListKind selects which non-deleted tasks a listing returns.
type ListKind string

const (
	ListAll       ListKind = "all"
	ListPending   ListKind = "pending"
	ListCompleted ListKind = "completed"
)

type TaskListFilter struct {
	UserID uint
	Kind   ListKind
	// Search matches titles case-insensitively.
	Search string
}

// TaskRepository handles CRUD for tasks. Soft-deleted tasks are excluded from
// every read.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ? AND deleted = ?", userID, taskID, false).
		First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context, filter TaskListFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND deleted = ?", filter.UserID, false)
	switch filter.Kind {
	case ListPending:
		q = q.Where("completed = ?", false)
	case ListCompleted:
		q = q.Where("completed = ?", true)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var tasks []model.Task
	if err := q.Order("priority ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListForDigest returns every non-deleted task of the user by priority.
func (r *TaskRepository) ListForDigest(ctx context.Context, userID uint) ([]model.Task, error) {
	return r.List(ctx, TaskListFilter{UserID: userID, Kind: ListAll})
}

// Count counts non-deleted tasks; completed narrows to that flag when non-nil.
func (r *TaskRepository) Count(ctx context.Context, userID uint, completed *bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{}).Where("user_id = ? AND deleted = ?", userID, false)
	if completed != nil {
		q = q.Where("completed = ?", *completed)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (r *TaskRepository) CountActive(ctx context.Context, userID uint) (int64, error) {
	completed := false
	return r.Count(ctx, userID, &completed)
}

// ActiveAtPriority returns the active tasks of the user holding priority,
// skipping excludeID (0 skips nothing).
func (r *TaskRepository) ActiveAtPriority(ctx context.Context, userID uint, priority int, excludeID uint) ([]model.Task, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND priority = ? AND deleted = ? AND completed = ?", userID, priority, false, false)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var tasks []model.Task
	if err := q.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("find tasks at priority %d: %w", priority, err)
	}
	return tasks, nil
}

// IncrementPriorities bumps the priority of every given task by one in a
// single statement.
func (r *TaskRepository) IncrementPriorities(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id IN ?", ids).
		Update("priority", gorm.Expr("priority + ?", 1)).Error; err != nil {
		return fmt.Errorf("increment priorities: %w", err)
	}
	return nil
}

// SoftDelete flags a task as deleted. It returns gorm.ErrRecordNotFound when
// the user has no such live task.
func (r *TaskRepository) SoftDelete(ctx context.Context, userID, taskID uint) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id = ? AND deleted = ?", userID, taskID, false).
		Update("deleted", true)
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
