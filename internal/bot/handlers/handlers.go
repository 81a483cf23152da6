package handlers

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/calendard/internal/materialize"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/notify"
)

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Calendar interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	EnsureDefaultAccount(ctx context.Context) (*models.Account, error)
	Days(ctx context.Context, accountID string, start, end time.Time, keyword string) (materialize.Days, error)
	CreateSchedule(ctx context.Context, accountID string, s *models.Schedule) (*models.Schedule, error)
}

// Actions is implemented by *notify.Dispatcher.
type Actions interface {
	HandleCallback(ctx context.Context, reminderID string, action notify.Action) error
}

type SyncRequester interface {
	Request(accountID string, direction models.SyncDirection)
}

type Handlers struct {
	api      API
	chatID   int64
	calendar Calendar
	actions  Actions
	syncs    SyncRequester
	loc      *time.Location
	clock    func() time.Time
}

// New builds handlers that only answer the configured chat. syncs may be
// nil when no remote backend is configured.
func New(api API, chatID int64, calendar Calendar, actions Actions, syncs SyncRequester, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		api:      api,
		chatID:   chatID,
		calendar: calendar,
		actions:  actions,
		syncs:    syncs,
		loc:      loc,
		clock:    time.Now,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != h.chatID {
		return
	}

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "today":
		h.handleToday(ctx, msg)
	case "week":
		h.handleWeek(ctx, msg)
	case "add":
		h.handleAdd(ctx, msg)
	case "sync":
		h.handleSync(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != h.chatID {
		return
	}
	h.sendMessage(msg.Chat.ID, "I only understand commands, see /help")
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.Message.Chat == nil || callback.Message.Chat.ID != h.chatID {
		h.answerCallbackWithAlert(callback.ID, "This reminder is not yours")
		return
	}

	// Answer callback to remove loading state
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	action, reminderID, ok := ParseCallbackData(callback.Data)
	if !ok {
		return
	}
	h.handleReminderAction(ctx, callback.Message, reminderID, action)
}

func (h *Handlers) answerCallbackWithAlert(callbackID string, text string) {
	answer := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := h.api.Request(answer); err != nil {
		log.Printf("Failed to answer callback with alert: %v", err)
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.api.Send(edit); err != nil {
		log.Printf("Failed to edit message: %v", err)
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	name := "there"
	if msg.From != nil && msg.From.FirstName != "" {
		name = msg.From.FirstName
	}
	h.sendMessage(msg.Chat.ID, "👋 Hi "+name+"!\n\nI send your calendar reminders here. Use /help to see what else I can do.")
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 *Commands*

/today [keyword] - today's schedule
/week - the next seven days
/add <YYYY-MM-DD> <HH:MM> <title> - add a one-hour event with a 15 minute reminder
/sync [upload|download|both] - synchronize network accounts`
	h.sendMessage(msg.Chat.ID, text)
}
