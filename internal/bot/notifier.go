package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/calendard/internal/bot/handlers"
	"github.com/hray3182/calendard/internal/format"
	"github.com/hray3182/calendard/internal/notify"
)

// Notifier shows reminders as chat messages with an inline keyboard of the
// offered actions. The message id is the notification handle.
type Notifier struct {
	api    handlers.API
	chatID int64
}

func NewNotifier(api handlers.API, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

func (n *Notifier) Show(ctx context.Context, note notify.Notification) (int, error) {
	text := "⏰ **" + note.Title + "**\n\n" + note.Body

	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(n.chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if keyboard := handlers.ReminderKeyboard(note.ReminderID, note.Actions); keyboard != nil {
		msg.ReplyMarkup = keyboard
	}

	sent, err := n.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send reminder message: %w", err)
	}
	return sent.MessageID, nil
}

// Close deletes the message so that a re-shown reminder does not pile up
// in the chat.
func (n *Notifier) Close(ctx context.Context, notifyID int) error {
	if notifyID == 0 {
		return nil
	}
	if _, err := n.api.Request(tgbotapi.NewDeleteMessage(n.chatID, notifyID)); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", notifyID, err)
	}
	return nil
}
