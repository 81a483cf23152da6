package models

import "time"

type ReminderRecord struct {
	ReminderID   string     `json:"reminder_id"`
	AccountID    string     `json:"account_id"`
	ScheduleID   string     `json:"schedule_id"`
	RecurrenceID *time.Time `json:"recurrence_id"` // nil for non-recurring schedules and template instances
	Start        time.Time  `json:"dtstart"`
	End          time.Time  `json:"dtend"`
	AlarmAt      time.Time  `json:"alarm_at"`  // Derived from the schedule alarm
	RemindAt     time.Time  `json:"remind_at"` // Current fire time, moved by snoozes
	SnoozeCount  int        `json:"snooze_count"`
	NotifyID     int        `json:"notify_id"`    // 0 until the notification is shown
	TriggerName  string     `json:"trigger_name"` // Name used at the most recent registration
	CreatedAt    time.Time  `json:"created_at"`
}

// Fired reports whether the reminder has been shown at least once.
func (r *ReminderRecord) Fired() bool {
	return r.NotifyID != 0
}

// OccurrenceKey identifies the occurrence a record belongs to.
func (r *ReminderRecord) OccurrenceKey() string {
	return OccurrenceKey(r.ScheduleID, r.RecurrenceID)
}

func OccurrenceKey(scheduleID string, recurrenceID *time.Time) string {
	if recurrenceID == nil {
		return scheduleID + "|"
	}
	return scheduleID + "|" + recurrenceID.UTC().Format(time.RFC3339)
}
