package bot

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
	updates  chan tgbotapi.Update
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	close(f.updates)
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	db   *gorm.DB
	api  *fakeAPI
	bot  *Bot
	user *model.User
}

const linkedChat = int64(5150)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	reports := repository.NewReportRepository(db)

	chatID := linkedChat
	user := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", TelegramChatID: &chatID}
	require.NoError(t, users.Create(ctx, user))
	require.NoError(t, reports.Create(ctx, &model.Report{UserID: user.ID}))

	taskSvc := service.NewTaskService(repository.NewTransactor(db), tasks, reports, repository.NewHistoryRepository(db), true)

	api := &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
	return &fixture{db: db, api: api, bot: newBot(api, users, taskSvc, service.NewDigestService(tasks)), user: user}
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: chatID},
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func (f *fixture) addTask(t *testing.T, title string, priority int) *model.Task {
	t.Helper()
	task := &model.Task{UserID: f.user.ID, Title: title, Priority: priority, Status: model.StatusPending}
	require.NoError(t, repository.NewTaskRepository(f.db).Create(context.Background(), task))
	return task
}

func TestHelpShowsChatID(t *testing.T) {
	f := newFixture(t)
	f.bot.handleUpdate(context.Background(), command(999, "/help"))

	msg := f.api.last(t)
	assert.Equal(t, int64(999), msg.ChatID)
	assert.Contains(t, msg.Text, "not linked")
	assert.Contains(t, msg.Text, "<code>999</code>")
}

func TestTasksRequiresLinkedChat(t *testing.T) {
	f := newFixture(t)
	f.bot.handleUpdate(context.Background(), command(999, "/tasks"))
	assert.Contains(t, f.api.last(t).Text, "not linked")
}

func TestTasksListsActiveByPriority(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "second <thing>", 2)
	f.addTask(t, "first thing", 1)

	f.bot.handleUpdate(context.Background(), command(linkedChat, "/tasks"))

	msg := f.api.last(t)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	first := strings.Index(msg.Text, "first thing")
	second := strings.Index(msg.Text, "second &lt;thing&gt;")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, 2)
}

func TestDoneCompletesTask(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "write docs", 1)

	f.bot.handleUpdate(context.Background(), command(linkedChat, "/done "+itoa(task.ID)))
	assert.Contains(t, f.api.last(t).Text, "is done")

	var got model.Task
	require.NoError(t, f.db.First(&got, task.ID).Error)
	assert.True(t, got.Completed)
	assert.Equal(t, model.StatusCompleted, got.Status)

	f.bot.handleUpdate(context.Background(), command(linkedChat, "/done 424242"))
	assert.Equal(t, "Task not found.", f.api.last(t).Text)

	f.bot.handleUpdate(context.Background(), command(linkedChat, "/done abc"))
	assert.Equal(t, "Task id must be a number.", f.api.last(t).Text)
}

func TestCompleteCallback(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "call bank", 1)

	f.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: linkedChat},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: linkedChat, Type: "private"}},
		Data:    cbCompletePrefix + itoa(task.ID),
	}})

	assert.Equal(t, 1, f.api.requests)
	assert.Equal(t, "No active tasks.", f.api.last(t).Text)
}

func TestReportDoesNotTouchLastReport(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "pay rent", 1)

	f.bot.handleUpdate(context.Background(), command(linkedChat, "/report"))

	msg := f.api.last(t)
	assert.Contains(t, msg.Text, "You have 1 Pending and 0 in progress tasks")
	assert.Contains(t, msg.Text, "Hey there alice")

	report, err := repository.NewReportRepository(f.db).FindByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, report.LastReport)
}

func TestStartStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.bot.Start(ctx) }()

	f.api.updates <- command(999, "/help")
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("abcd\n", 5)
	parts := splitMessage(text, 12)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 12)
	}
	assert.Equal(t, []string{"abcdefgh", "ij"}, splitMessage("abcdefghij", 8))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
