package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/calendard/internal/materialize"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/rrule"
)

func (h *Handlers) handleToday(ctx context.Context, msg *tgbotapi.Message) {
	keyword := strings.TrimSpace(msg.CommandArguments())
	start := midnight(h.clock().In(h.loc))
	h.sendAgenda(ctx, msg.Chat.ID, start, start.AddDate(0, 0, 1).Add(-time.Second), keyword)
}

func (h *Handlers) handleWeek(ctx context.Context, msg *tgbotapi.Message) {
	start := midnight(h.clock().In(h.loc))
	h.sendAgenda(ctx, msg.Chat.ID, start, start.AddDate(0, 0, 7).Add(-time.Second), "")
}

func (h *Handlers) sendAgenda(ctx context.Context, chatID int64, start, end time.Time, keyword string) {
	accounts, err := h.calendar.ListAccounts(ctx)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		h.sendMessage(chatID, "Failed to load your calendar, please try again later")
		return
	}

	merged := make(materialize.Days)
	for _, a := range accounts {
		days, err := h.calendar.Days(ctx, a.AccountID, start, end, keyword)
		if err != nil {
			log.Printf("Failed to load schedule of %s: %v", a.AccountID, err)
			continue
		}
		merged.Merge(days)
	}

	h.sendMessage(chatID, FormatAgenda(merged))
}

// FormatAgenda renders the non-empty days in date order.
func FormatAgenda(days materialize.Days) string {
	occs := days.Flatten()
	if len(occs) == 0 {
		return "📅 Nothing scheduled"
	}

	var sb strings.Builder
	var lastDay string
	for _, o := range occs {
		day := o.Start.Format("Mon Jan 2")
		if day != lastDay {
			if lastDay != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("📅 *%s*\n", day))
			lastDay = day
		}

		timeStr := "all day"
		if !o.AllDay {
			timeStr = o.Start.Format("15:04") + "-" + o.End.Format("15:04")
		}
		sb.WriteString(fmt.Sprintf("• %s %s", timeStr, o.Title))
		if o.IsRecurring() {
			sb.WriteString(" 🔄 " + rrule.Describe(o.RecurrenceRule))
		}
		if o.Alarm != models.AlarmNone {
			sb.WriteString(" ⏰")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (h *Handlers) handleAdd(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 3 {
		h.sendMessage(msg.Chat.ID, "Usage: /add <YYYY-MM-DD> <HH:MM> <title>\nExample: /add 2024-01-05 15:30 Dentist")
		return
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", args[0]+" "+args[1], h.loc)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Invalid date or time, use YYYY-MM-DD HH:MM")
		return
	}

	acct, err := h.calendar.EnsureDefaultAccount(ctx)
	if err != nil {
		log.Printf("Failed to resolve default account: %v", err)
		h.sendMessage(msg.Chat.ID, "Failed to create event, please try again later")
		return
	}

	sched := &models.Schedule{
		TypeID: "type-other",
		Title:  strings.Join(args[2:], " "),
		Start:  start,
		End:    start.Add(time.Hour),
		Alarm:  models.Alarm15MinutesBefore,
	}
	if _, err := h.calendar.CreateSchedule(ctx, acct.AccountID, sched); err != nil {
		log.Printf("Failed to create schedule: %v", err)
		h.sendMessage(msg.Chat.ID, "Failed to create event, please try again later")
		return
	}

	h.sendMessage(msg.Chat.ID, fmt.Sprintf("📅 Event created\nTitle: %s\nTime: %s", sched.Title, start.Format("2006-01-02 15:04")))
}

func (h *Handlers) handleSync(ctx context.Context, msg *tgbotapi.Message) {
	if h.syncs == nil {
		h.sendMessage(msg.Chat.ID, "No remote storage is configured")
		return
	}
	direction := models.ParseSyncDirection(msg.CommandArguments())

	accounts, err := h.calendar.ListAccounts(ctx)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		h.sendMessage(msg.Chat.ID, "Failed to start sync, please try again later")
		return
	}

	n := 0
	for _, a := range accounts {
		if a.IsNetwork() && a.SyncEnabled {
			h.syncs.Request(a.AccountID, direction)
			n++
		}
	}
	if n == 0 {
		h.sendMessage(msg.Chat.ID, "No network accounts to synchronize")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🔄 Sync (%s) requested for %d account(s)", direction, n))
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
