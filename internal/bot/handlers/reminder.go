package handlers

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/calendard/internal/notify"
)

const callbackPrefix = "rem"

// CallbackData encodes a reminder action as "rem:<code>:<reminder id>".
func CallbackData(action notify.Action, reminderID string) string {
	return callbackPrefix + ":" + action.Code() + ":" + reminderID
}

func ParseCallbackData(data string) (notify.Action, string, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[2] == "" {
		return notify.ActionUnknown, "", false
	}
	return notify.ParseAction(parts[1]), parts[2], true
}

// ReminderKeyboard lays out the offered actions: snoozes first, then the
// day-based deferrals, then view and dismiss.
func ReminderKeyboard(reminderID string, actions []notify.Action) *tgbotapi.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}

	var snoozes, days, rest []tgbotapi.InlineKeyboardButton
	for _, a := range actions {
		button := tgbotapi.NewInlineKeyboardButtonData(a.Label(), CallbackData(a, reminderID))
		switch a {
		case notify.ActionRemindLater, notify.ActionRemindLater15m, notify.ActionRemindLater1h, notify.ActionRemindLater4h:
			snoozes = append(snoozes, button)
		case notify.ActionTomorrow, notify.ActionOneDayBefore:
			days = append(days, button)
		default:
			rest = append(rest, button)
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range [][]tgbotapi.InlineKeyboardButton{snoozes, days, rest} {
		if len(row) > 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
		}
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func (h *Handlers) handleReminderAction(ctx context.Context, msg *tgbotapi.Message, reminderID string, action notify.Action) {
	if err := h.actions.HandleCallback(ctx, reminderID, action); err != nil {
		log.Printf("Failed to apply %s to reminder %s: %v", action.Code(), reminderID, err)
		h.sendMessage(msg.Chat.ID, "Failed to update the reminder, please try again later")
		return
	}

	// Editing without markup drops the keyboard.
	h.editMessageText(msg.Chat.ID, msg.MessageID, msg.Text+"\n\n"+outcome(action))
}

func outcome(action notify.Action) string {
	switch action {
	case notify.ActionRemindLater, notify.ActionRemindLater15m, notify.ActionRemindLater1h, notify.ActionRemindLater4h, notify.ActionTomorrow:
		return "💤 Snoozed (" + action.Label() + ")"
	case notify.ActionOneDayBefore:
		return "📆 Will remind one day before"
	case notify.ActionClose:
		return "✅ Dismissed"
	}
	return "👀 Seen"
}
