package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"gorm.io/gorm"

	"task-manager/internal/cerr"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

const minTitleLength = 3

// TaskInput represents the editable fields of a task.
type TaskInput struct {
	Title       string
	Description string
	Priority    int
	Completed   bool
	Status      string
}

func (in TaskInput) validate() (TaskInput, model.TaskStatus, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if len([]rune(in.Title)) < minTitleLength {
		return in, "", cerr.Invalid("title should have at least 3 characters")
	}
	if in.Priority < 1 {
		return in, "", cerr.Invalid("priority must be a positive integer")
	}
	status, err := model.ParseStatus(in.Status)
	if err != nil {
		return in, "", cerr.NewError(cerr.InvalidArgument, "unknown status", err)
	}
	return in, status, nil
}

// TaskList is a filtered listing together with the user's counters.
type TaskList struct {
	Tasks          []model.Task
	CompletedCount int64
	TotalCount     int64
	ReportID       uint
}

type ListOptions struct {
	Kind   repository.ListKind
	Search string
}

// TaskService wraps task-related business logic. Writes that claim a priority
// run the resequencer in the same transaction, one at a time per user.
type TaskService struct {
	tx            *repository.Transactor
	taskRepo      *repository.TaskRepository
	reportRepo    *repository.ReportRepository
	historyRepo   *repository.HistoryRepository
	recordHistory bool
	locks         userLocks
}

func NewTaskService(
	tx *repository.Transactor,
	taskRepo *repository.TaskRepository,
	reportRepo *repository.ReportRepository,
	historyRepo *repository.HistoryRepository,
	recordHistory bool,
) *TaskService {
	return &TaskService{
		tx:            tx,
		taskRepo:      taskRepo,
		reportRepo:    reportRepo,
		historyRepo:   historyRepo,
		recordHistory: recordHistory,
		locks:         userLocks{locks: make(map[uint]*sync.Mutex)},
	}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	input, status, err := input.validate()
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:      user.ID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Completed:   input.Completed,
		Status:      status,
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	err = s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		tasks := s.taskRepo.WithTx(tx)
		if _, err := ResequencePriorities(ctx, tasks, user.ID, task.Priority, 0); err != nil {
			return err
		}
		return tasks.Create(ctx, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask replaces the editable fields of a task. The resequencer runs when
// the priority changes or a completed task becomes active again.
func (s *TaskService) UpdateTask(ctx context.Context, user *model.User, taskID uint, input TaskInput) (*model.Task, error) {
	input, status, err := input.validate()
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	var task *model.Task
	err = s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		var err error
		task, err = s.update(ctx, tx, user.ID, taskID, func(t *model.Task) {
			t.Title = input.Title
			t.Description = input.Description
			t.Priority = input.Priority
			t.Completed = input.Completed
			t.Status = status
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask marks a task as done.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	unlock := s.locks.lock(user.ID)
	defer unlock()

	var task *model.Task
	err := s.tx.WithinTx(ctx, func(tx *gorm.DB) error {
		var err error
		task, err = s.update(ctx, tx, user.ID, taskID, func(t *model.Task) {
			t.Completed = true
			t.Status = model.StatusCompleted
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) update(ctx context.Context, tx *gorm.DB, userID, taskID uint, apply func(*model.Task)) (*model.Task, error) {
	tasks := s.taskRepo.WithTx(tx)
	task, err := tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, notFound(err, "task not found")
	}
	before := *task
	apply(task)

	reactivated := before.Completed && !task.Completed
	if task.Priority != before.Priority || reactivated {
		if _, err := ResequencePriorities(ctx, tasks, userID, task.Priority, task.ID); err != nil {
			return nil, err
		}
	}

	if s.recordHistory && task.Status != before.Status {
		entry := model.TaskHistory{TaskID: task.ID, OldStatus: before.Status, NewStatus: task.Status}
		if err := s.historyRepo.WithTx(tx).Create(ctx, &entry); err != nil {
			return nil, err
		}
	}

	if err := tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask soft-deletes a task; it disappears from listings and digests.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	unlock := s.locks.lock(user.ID)
	defer unlock()

	if err := s.taskRepo.SoftDelete(ctx, user.ID, taskID); err != nil {
		return notFound(err, "task not found")
	}
	return nil
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, notFound(err, "task not found")
	}
	return task, nil
}

func (s *TaskService) ListTasks(ctx context.Context, user *model.User, opts ListOptions) (*TaskList, error) {
	switch opts.Kind {
	case "":
		opts.Kind = repository.ListAll
	case repository.ListAll, repository.ListPending, repository.ListCompleted:
	default:
		return nil, cerr.Invalid("type must be one of pending, completed, all")
	}

	tasks, err := s.taskRepo.List(ctx, repository.TaskListFilter{
		UserID: user.ID,
		Kind:   opts.Kind,
		Search: opts.Search,
	})
	if err != nil {
		return nil, err
	}

	completed := true
	completedCount, err := s.taskRepo.Count(ctx, user.ID, &completed)
	if err != nil {
		return nil, err
	}
	total, err := s.taskRepo.Count(ctx, user.ID, nil)
	if err != nil {
		return nil, err
	}

	list := &TaskList{Tasks: tasks, CompletedCount: completedCount, TotalCount: total}
	report, err := s.reportRepo.FindByUser(ctx, user.ID)
	switch {
	case err == nil:
		list.ReportID = report.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return list, nil
}

// ListActive returns the user's active tasks by priority.
func (s *TaskService) ListActive(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.List(ctx, repository.TaskListFilter{UserID: user.ID, Kind: repository.ListPending})
}

// TaskHistory returns the status transitions of a task, newest first.
func (s *TaskService) TaskHistory(ctx context.Context, user *model.User, taskID uint) ([]model.TaskHistory, error) {
	if _, err := s.GetTask(ctx, user, taskID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByTask(ctx, taskID)
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cerr.NewError(cerr.NotFound, msg, err)
	}
	return err
}

type userLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func (l *userLocks) lock(userID uint) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
