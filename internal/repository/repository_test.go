package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-manager/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func TestTaskRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	user := createUser(t, db, "alice")
	other := createUser(t, db, "bob")

	tasks := []model.Task{
		{UserID: user.ID, Title: "Write report", Priority: 2, Status: model.StatusPending},
		{UserID: user.ID, Title: "Buy milk", Priority: 1, Status: model.StatusPending},
		{UserID: user.ID, Title: "File REPORT", Priority: 3, Completed: true, Status: model.StatusCompleted},
		{UserID: user.ID, Title: "Old report", Priority: 4, Deleted: true, Status: model.StatusPending},
		{UserID: other.ID, Title: "Report for bob", Priority: 1, Status: model.StatusPending},
	}
	for i := range tasks {
		require.NoError(t, repo.Create(ctx, &tasks[i]))
	}

	all, err := repo.List(ctx, TaskListFilter{UserID: user.ID, Kind: ListAll})
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Write report", "File REPORT"}, titles(all))

	pending, err := repo.List(ctx, TaskListFilter{UserID: user.ID, Kind: ListPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Write report"}, titles(pending))

	completed, err := repo.List(ctx, TaskListFilter{UserID: user.ID, Kind: ListCompleted})
	require.NoError(t, err)
	assert.Equal(t, []string{"File REPORT"}, titles(completed))

	searched, err := repo.List(ctx, TaskListFilter{UserID: user.ID, Kind: ListAll, Search: "report"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Write report", "File REPORT"}, titles(searched))

	total, err := repo.Count(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	active, err := repo.CountActive(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, active)
}

func TestTaskRepositoryPriorityHelpers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	user := createUser(t, db, "alice")

	a := model.Task{UserID: user.ID, Title: "aaa", Priority: 3, Status: model.StatusPending}
	b := model.Task{UserID: user.ID, Title: "bbb", Priority: 3, Completed: true, Status: model.StatusCompleted}
	c := model.Task{UserID: user.ID, Title: "ccc", Priority: 4, Status: model.StatusPending}
	for _, task := range []*model.Task{&a, &b, &c} {
		require.NoError(t, repo.Create(ctx, task))
	}

	at3, err := repo.ActiveAtPriority(ctx, user.ID, 3, 0)
	require.NoError(t, err)
	require.Len(t, at3, 1)
	assert.Equal(t, a.ID, at3[0].ID)

	excluded, err := repo.ActiveAtPriority(ctx, user.ID, 3, a.ID)
	require.NoError(t, err)
	assert.Empty(t, excluded)

	require.NoError(t, repo.IncrementPriorities(ctx, []uint{a.ID, c.ID}))
	require.NoError(t, repo.IncrementPriorities(ctx, nil))

	gotA, err := repo.FindByID(ctx, user.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, gotA.Priority)
	gotC, err := repo.FindByID(ctx, user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, gotC.Priority)
}

func TestTaskRepositorySoftDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	user := createUser(t, db, "alice")
	other := createUser(t, db, "mallory")

	task := model.Task{UserID: user.ID, Title: "temporary", Priority: 1, Status: model.StatusPending}
	require.NoError(t, repo.Create(ctx, &task))

	err := repo.SoftDelete(ctx, other.ID, task.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, repo.SoftDelete(ctx, user.ID, task.ID))

	_, err = repo.FindByID(ctx, user.ID, task.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	err = repo.SoftDelete(ctx, user.ID, task.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	var raw model.Task
	require.NoError(t, db.First(&raw, task.ID).Error)
	assert.True(t, raw.Deleted)
}

func TestReportRepositoryListOverdue(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewReportRepository(db)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	cases := map[string]*time.Time{
		"never":    nil,
		"boundary": at(24 * time.Hour),
		"old":      at(72 * time.Hour),
		"recent":   at(23*time.Hour + 59*time.Minute),
		"now":      at(0),
	}
	for name, last := range cases {
		user := createUser(t, db, name)
		require.NoError(t, repo.Create(ctx, &model.Report{UserID: user.ID, LastReport: last}))
	}

	reports, err := repo.ListOverdue(ctx, cutoff)
	require.NoError(t, err)

	var names []string
	for _, r := range reports {
		names = append(names, r.User.Username)
	}
	assert.ElementsMatch(t, []string{"never", "boundary", "old"}, names)
}

func TestReportRepositoryUpdates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewReportRepository(db)
	user := createUser(t, db, "alice")

	report := &model.Report{UserID: user.ID}
	require.NoError(t, repo.Create(ctx, report))

	sentAt := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSent(ctx, report, sentAt))
	require.NoError(t, repo.UpdateTiming(ctx, report, 7))

	got, err := repo.FindByUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastReport)
	assert.True(t, sentAt.Equal(*got.LastReport))
	assert.Equal(t, 7, got.Timing)
}

func TestUserRepositoryContact(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewUserRepository(db)
	user := createUser(t, db, "alice")

	chatID := int64(4242)
	require.NoError(t, repo.UpdateContact(ctx, user, "new@example.com", &chatID))

	got, err := repo.FindByTelegramChatID(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "new@example.com", got.Email)

	require.NoError(t, repo.UpdateContact(ctx, user, "new@example.com", nil))
	_, err = repo.FindByTelegramChatID(ctx, chatID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestTransactorRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := createUser(t, db, "alice")
	boom := errors.New("boom")

	err := NewTransactor(db).WithinTx(ctx, func(tx *gorm.DB) error {
		task := model.Task{UserID: user.ID, Title: "rolled back", Priority: 1, Status: model.StatusPending}
		if err := NewTaskRepository(db).WithTx(tx).Create(ctx, &task); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := NewTaskRepository(db).Count(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithBusyTimeout(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000", withBusyTimeout("a.db"))
	assert.Equal(t, "a.db?cache=shared&_busy_timeout=5000", withBusyTimeout("a.db?cache=shared"))
	assert.Equal(t, "a.db?_busy_timeout=10", withBusyTimeout("a.db?_busy_timeout=10"))
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}
