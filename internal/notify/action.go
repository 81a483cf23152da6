package notify

import "time"

// Action is a user response to a shown reminder.
type Action int

const (
	ActionDefault Action = iota
	ActionClose
	ActionOpen
	ActionRemindLater
	ActionRemindLater15m
	ActionRemindLater1h
	ActionRemindLater4h
	ActionTomorrow
	ActionOneDayBefore
	ActionUnknown
)

var actionCodes = map[Action]string{
	ActionDefault:        "default",
	ActionClose:          "close",
	ActionOpen:           "open",
	ActionRemindLater:    "later",
	ActionRemindLater15m: "l15",
	ActionRemindLater1h:  "l1h",
	ActionRemindLater4h:  "l4h",
	ActionTomorrow:       "tmrw",
	ActionOneDayBefore:   "dayb",
}

// Code is the short form carried in callback data.
func (a Action) Code() string {
	if c, ok := actionCodes[a]; ok {
		return c
	}
	return "unknown"
}

func ParseAction(code string) Action {
	for a, c := range actionCodes {
		if c == code {
			return a
		}
	}
	return ActionUnknown
}

func (a Action) Label() string {
	switch a {
	case ActionDefault, ActionOpen:
		return "View"
	case ActionClose:
		return "Dismiss"
	case ActionRemindLater:
		return "Remind later"
	case ActionRemindLater15m:
		return "15 min"
	case ActionRemindLater1h:
		return "1 hour"
	case ActionRemindLater4h:
		return "4 hours"
	case ActionTomorrow:
		return "Tomorrow"
	case ActionOneDayBefore:
		return "1 day before"
	}
	return "?"
}

const maxSnoozeDelay = 60 * time.Minute

// RetryDelay is how long a reminder waits after a failed delivery.
const RetryDelay = time.Minute

// SnoozeDelay is the generic remind-later delay for the n-th snooze:
// 10 minutes, growing by 5 per snooze, capped at an hour.
func SnoozeDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := time.Duration(10+(n-1)*5) * time.Minute
	if d > maxSnoozeDelay {
		return maxSnoozeDelay
	}
	return d
}

// SnoozeSaturated reports whether the delay already reached its cap.
func SnoozeSaturated(snoozeCount int) bool {
	return snoozeCount > 0 && SnoozeDelay(snoozeCount) >= maxSnoozeDelay
}

// AvailableActions lists the actions offered for a reminder of an
// occurrence starting at start, shown at now.
func AvailableActions(start time.Time, snoozeCount int, now time.Time) []Action {
	if !start.After(now) {
		return []Action{ActionDefault, ActionClose}
	}

	actions := []Action{ActionDefault}
	if !SnoozeSaturated(snoozeCount) {
		actions = append(actions, ActionRemindLater, ActionRemindLater15m, ActionRemindLater1h, ActionRemindLater4h)
	}
	days := daysBetween(now, start)
	if days >= 2 {
		actions = append(actions, ActionTomorrow)
		if snoozeCount == 0 {
			actions = append(actions, ActionOneDayBefore)
		}
	}
	return append(actions, ActionClose)
}

// daysBetween counts calendar days from a to b in a's location.
func daysBetween(a, b time.Time) int {
	b = b.In(a.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
