package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc/panics"
	"gorm.io/gorm"

	"task-manager/internal/cerr"
	"task-manager/internal/clog"
	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

const (
	cbCompletePrefix = "complete:"

	// maxMessageRunes is Telegram's limit for one text message.
	maxMessageRunes = 4096
)

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot serves task commands in private chats linked to an account and delivers
// digest copies.
type Bot struct {
	api       botAPI
	userRepo  *repository.UserRepository
	taskSvc   *service.TaskService
	digestSvc *service.DigestService
}

func New(token string, userRepo *repository.UserRepository, taskSvc *service.TaskService, digestSvc *service.DigestService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	slog.Info("bot authorized", "account", api.Self.UserName)
	return newBot(api, userRepo, taskSvc, digestSvc), nil
}

func newBot(api botAPI, userRepo *repository.UserRepository, taskSvc *service.TaskService, digestSvc *service.DigestService) *Bot {
	return &Bot{api: api, userRepo: userRepo, taskSvc: taskSvc, digestSvc: digestSvc}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	slog.InfoContext(ctx, "start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return nil
}

func (b *Bot) handleUpdate(parent context.Context, update tgbotapi.Update) {
	ctx := clog.ContextWithSlog(parent)
	clog.AddAttribute(ctx, "update_id", update.UpdateID)

	var err error
	var catcher panics.Catcher
	catcher.Try(func() {
		switch {
		case update.CallbackQuery != nil:
			err = b.handleCallback(ctx, update.CallbackQuery)
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				return
			}
			err = b.handleMessage(ctx, update.Message)
		}
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil {
		slog.ErrorContext(ctx, "handle update", "error", err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}

	clog.AddAttribute(ctx, "command", msg.Command())
	switch msg.Command() {
	case "start", "help":
		return b.handleHelp(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) error {
	var sb strings.Builder
	if user, err := b.linkedUser(ctx, msg.Chat.ID); err == nil {
		fmt.Fprintf(&sb, "Hi <b>%s</b>!\n\n", escape(user.Username))
	} else {
		fmt.Fprintf(&sb, "Hi! This chat is not linked to an account yet.\n"+
			"Set <code>telegram_chat_id</code> to <code>%d</code> in your profile to link it.\n\n", msg.Chat.ID)
	}
	sb.WriteString("Commands:\n" +
		"• /tasks - active tasks by priority\n" +
		"• /done &lt;id&gt; - mark a task completed\n" +
		"• /report - your task summary right now\n" +
		"• /help - this message\n\n")
	fmt.Fprintf(&sb, "Chat id: <code>%d</code>", msg.Chat.ID)
	return b.sendHTML(msg.Chat.ID, sb.String(), nil)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.requireUser(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

// handleReport sends the digest without touching last_report.
func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.requireUser(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	digest, err := b.digestSvc.BuildDigest(ctx, *user)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not build the summary, try again later.")
	}
	return b.SendDigest(ctx, msg.Chat.ID, digest.Subject+"\n\n"+digest.Body)
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /done 12")
	}
	taskID, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Task id must be a number.")
	}

	user, ok, err := b.requireUser(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	return b.completeTask(ctx, msg.Chat.ID, user, uint(taskID))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		slog.WarnContext(ctx, "callback ack", "error", err)
	}
	if !strings.HasPrefix(cb.Data, cbCompletePrefix) {
		return nil
	}
	taskID, err := strconv.ParseUint(strings.TrimPrefix(cb.Data, cbCompletePrefix), 10, 64)
	if err != nil {
		return nil
	}

	chatID := cb.Message.Chat.ID
	user, ok, err := b.requireUser(ctx, chatID)
	if !ok {
		return err
	}
	if err := b.completeTask(ctx, chatID, user, uint(taskID)); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.taskSvc.CompleteTask(ctx, user, taskID)
	if cerr.CodeOf(err) == cerr.NotFound {
		return b.sendText(chatID, "Task not found.")
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "task completed from chat", "task_id", task.ID, "user_id", user.ID)
	return b.sendHTML(chatID, fmt.Sprintf("✅ <b>%s</b> is done.", escape(task.Title)), nil)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.ListActive(ctx, user)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "No active tasks.")
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Active tasks</b>\n\n")
	buttons := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, task := range tasks {
		sb.WriteString(formatTask(task))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 24)),
				fmt.Sprintf("%s%d", cbCompletePrefix, task.ID),
			),
		))
	}
	return b.sendHTML(chatID, strings.TrimSpace(sb.String()), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

// SendDigest delivers text to chatID, split to fit Telegram's message limit.
func (b *Bot) SendDigest(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send digest to chat %d: %w", chatID, err)
		}
	}
	return nil
}

// requireUser returns the account linked to chatID. When there is none it
// answers the chat itself and reports ok=false.
func (b *Bot) requireUser(ctx context.Context, chatID int64) (*model.User, bool, error) {
	user, err := b.linkedUser(ctx, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, b.sendText(chatID, fmt.Sprintf(
			"This chat is not linked yet. Set telegram_chat_id to %d in your profile.", chatID))
	}
	if err != nil {
		return nil, false, err
	}
	clog.AddAttribute(ctx, "user_id", user.ID)
	return user, true, nil
}

func (b *Bot) linkedUser(ctx context.Context, chatID int64) (*model.User, error) {
	return b.userRepo.FindByTelegramChatID(ctx, chatID)
}

func (b *Bot) sendText(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) sendHTML(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := b.api.Send(msg)
	return err
}

func formatTask(task model.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%d.</b> %s <i>#%d · %s</i>\n", task.Priority, escape(task.Title), task.ID, task.Status.Label())
	if desc := strings.TrimSpace(task.Description); desc != "" {
		fmt.Fprintf(&sb, "   📝 %s\n", escape(desc))
	}
	return sb.String()
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	return string(runes[:maxLen-1]) + "…"
}

// splitMessage cuts text into parts of at most limit runes, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func escape(s string) string {
	return html.EscapeString(s)
}
