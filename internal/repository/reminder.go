package repository

import (
	"context"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

const reminderColumns = `reminder_id, account_id, schedule_id, recurrence_id, dtstart, dtend,
	alarm_at, remind_at, snooze_count, notify_id, trigger_name, created_at`

type ReminderRepository struct {
	db database.DBTX
}

func NewReminderRepository(db database.DBTX) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Upsert writes the record keyed by reminder id. A different record for the
// same (schedule, recurrence id) violates the unique constraint.
func (r *ReminderRepository) Upsert(ctx context.Context, rec *models.ReminderRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminders (`+reminderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (reminder_id) DO UPDATE SET
		   account_id = excluded.account_id, schedule_id = excluded.schedule_id,
		   recurrence_id = excluded.recurrence_id, dtstart = excluded.dtstart, dtend = excluded.dtend,
		   alarm_at = excluded.alarm_at, remind_at = excluded.remind_at,
		   snooze_count = excluded.snooze_count, notify_id = excluded.notify_id,
		   trigger_name = excluded.trigger_name`,
		rec.ReminderID, rec.AccountID, rec.ScheduleID, formatTimePtr(rec.RecurrenceID),
		formatTime(rec.Start), formatTime(rec.End), formatTime(rec.AlarmAt), formatTime(rec.RemindAt),
		rec.SnoozeCount, rec.NotifyID, rec.TriggerName, formatTime(rec.CreatedAt),
	)
	return err
}

func (r *ReminderRepository) GetByID(ctx context.Context, reminderID string) (*models.ReminderRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE reminder_id = ?`, reminderID)
	rec, err := scanReminder(row)
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

// List returns every record ordered by fire time.
func (r *ReminderRepository) List(ctx context.Context) ([]*models.ReminderRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders ORDER BY remind_at, reminder_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ReminderRecord
	for rows.Next() {
		rec, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *ReminderRepository) Delete(ctx context.Context, reminderID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE reminder_id = ?`, reminderID)
	return err
}

func (r *ReminderRepository) DeleteBySchedule(ctx context.Context, scheduleID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE schedule_id = ?`, scheduleID)
	return err
}

func (r *ReminderRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders`)
	return err
}

func scanReminder(row rowScanner) (*models.ReminderRecord, error) {
	rec := &models.ReminderRecord{}
	var rid, start, end, alarmAt, remindAt, created string
	if err := row.Scan(&rec.ReminderID, &rec.AccountID, &rec.ScheduleID, &rid, &start, &end,
		&alarmAt, &remindAt, &rec.SnoozeCount, &rec.NotifyID, &rec.TriggerName, &created); err != nil {
		return nil, err
	}
	rec.RecurrenceID = parseTimePtr(rid)
	rec.Start = parseTime(start)
	rec.End = parseTime(end)
	rec.AlarmAt = parseTime(alarmAt)
	rec.RemindAt = parseTime(remindAt)
	rec.CreatedAt = parseTime(created)
	return rec, nil
}
