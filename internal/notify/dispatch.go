// Package notify shows fired reminders and applies the user's response.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hray3182/calendard/internal/metrics"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/rrule"
)

// Notification is what a Notifier renders for one reminder.
type Notification struct {
	AccountID  string
	ReminderID string
	Title      string
	Body       string
	Start      time.Time
	End        time.Time
	AllDay     bool
	Actions    []Action
}

// Notifier shows and closes notifications. Show returns a non-zero handle.
type Notifier interface {
	Show(ctx context.Context, n Notification) (int, error)
	Close(ctx context.Context, notifyID int) error
}

// Store is the per-account state the dispatcher needs. Lookups report
// models.ErrNotFound for missing rows.
type Store interface {
	GetReminder(ctx context.Context, reminderID string) (*models.ReminderRecord, error)
	UpsertReminder(ctx context.Context, rec *models.ReminderRecord) error
	DeleteReminder(ctx context.Context, reminderID string) error
	GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error)
	// UpdateScheduleAlarm persists a changed alarm and queues the upload task
	// for network accounts.
	UpdateScheduleAlarm(ctx context.Context, scheduleID string, alarm models.AlarmType) error
}

// Stores resolves accounts. Lock serializes reminder mutations per account.
type Stores interface {
	ReminderStore(ctx context.Context, accountID string) (Store, error)
	FindReminder(ctx context.Context, reminderID string) (accountID string, err error)
	Lock(accountID string) func()
}

// Triggers is implemented by *trigger.Scheduler.
type Triggers interface {
	Register(ctx context.Context, rec *models.ReminderRecord) error
	CancelSingle(ctx context.Context, rec *models.ReminderRecord) error
}

// Rederiver requests an asynchronous re-derivation of an account.
type Rederiver interface {
	Notify(accountID string, clear bool)
}

type Dispatcher struct {
	stores   Stores
	notifier Notifier
	triggers Triggers
	rederive Rederiver
	metrics  metrics.Sink
	clock    func() time.Time
}

func NewDispatcher(stores Stores, notifier Notifier, triggers Triggers, rederive Rederiver, sink metrics.Sink) *Dispatcher {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Dispatcher{
		stores:   stores,
		notifier: notifier,
		triggers: triggers,
		rederive: rederive,
		metrics:  sink,
		clock:    time.Now,
	}
}

// Fire shows the notification of a reminder whose trigger elapsed.
func (d *Dispatcher) Fire(ctx context.Context, accountID, reminderID string) error {
	unlock := d.stores.Lock(accountID)
	defer unlock()

	store, err := d.stores.ReminderStore(ctx, accountID)
	if err != nil {
		return err
	}
	rec, err := store.GetReminder(ctx, reminderID)
	if errors.Is(err, models.ErrNotFound) {
		log.Printf("Reminder %s fired but no longer exists", reminderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reminder %s: %w", reminderID, err)
	}

	sched, err := store.GetSchedule(ctx, rec.ScheduleID)
	if errors.Is(err, models.ErrNotFound) {
		log.Printf("Reminder %s refers to missing schedule %s", reminderID, rec.ScheduleID)
		return store.DeleteReminder(ctx, reminderID)
	}
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", rec.ScheduleID, err)
	}

	if rec.Fired() {
		if err := d.notifier.Close(ctx, rec.NotifyID); err != nil {
			log.Printf("Failed to close previous notification %d: %v", rec.NotifyID, err)
		}
	}

	n := Notification{
		AccountID:  accountID,
		ReminderID: rec.ReminderID,
		Title:      sched.Title,
		Body:       body(sched, rec),
		Start:      rec.Start,
		End:        rec.End,
		AllDay:     sched.AllDay,
		Actions:    AvailableActions(rec.Start, rec.SnoozeCount, d.clock()),
	}
	id, err := d.notifier.Show(ctx, n)
	if err != nil {
		d.retry(ctx, store, rec)
		return fmt.Errorf("failed to show reminder %s: %w", reminderID, err)
	}

	rec.NotifyID = id
	if err := store.UpsertReminder(ctx, rec); err != nil {
		return fmt.Errorf("failed to record notification of %s: %w", reminderID, err)
	}
	d.metrics.ReminderFired()
	return nil
}

// HandleCallback resolves the account of a reminder and applies action.
func (d *Dispatcher) HandleCallback(ctx context.Context, reminderID string, action Action) error {
	accountID, err := d.stores.FindReminder(ctx, reminderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.HandleAction(ctx, accountID, reminderID, action)
}

// HandleAction applies a user response. Acting on a reminder that no longer
// exists is a no-op.
func (d *Dispatcher) HandleAction(ctx context.Context, accountID, reminderID string, action Action) error {
	unlock := d.stores.Lock(accountID)
	defer unlock()

	store, err := d.stores.ReminderStore(ctx, accountID)
	if err != nil {
		return err
	}
	rec, err := store.GetReminder(ctx, reminderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reminder %s: %w", reminderID, err)
	}
	d.metrics.ReminderAction(action.Code())

	now := d.clock()
	switch action {
	case ActionRemindLater:
		return d.snooze(ctx, store, rec, now.Add(SnoozeDelay(rec.SnoozeCount+1)))
	case ActionRemindLater15m:
		return d.snooze(ctx, store, rec, now.Add(15*time.Minute))
	case ActionRemindLater1h:
		return d.snooze(ctx, store, rec, now.Add(time.Hour))
	case ActionRemindLater4h:
		return d.snooze(ctx, store, rec, now.Add(4*time.Hour))
	case ActionTomorrow:
		return d.snooze(ctx, store, rec, now.Add(24*time.Hour))
	case ActionOneDayBefore:
		return d.deferOneDay(ctx, accountID, store, rec)
	default:
		return d.dismiss(ctx, store, rec)
	}
}

// retry arms the reminder again after a failed delivery. The fired one-shot
// is already gone, so without this nothing would show it.
func (d *Dispatcher) retry(ctx context.Context, store Store, rec *models.ReminderRecord) {
	rec.RemindAt = d.clock().Add(RetryDelay)
	if err := d.triggers.Register(ctx, rec); err != nil {
		log.Printf("Failed to rearm reminder %s: %v", rec.ReminderID, err)
		return
	}
	if err := store.UpsertReminder(ctx, rec); err != nil {
		log.Printf("Failed to record retry of %s: %v", rec.ReminderID, err)
	}
}

// snooze registers the new trigger before dropping the old one, so a failed
// registration leaves the reminder as it was.
func (d *Dispatcher) snooze(ctx context.Context, store Store, rec *models.ReminderRecord, at time.Time) error {
	next := *rec
	next.SnoozeCount++
	next.RemindAt = at
	if err := d.triggers.Register(ctx, &next); err != nil {
		return fmt.Errorf("failed to reschedule reminder %s: %w", rec.ReminderID, err)
	}
	if err := d.triggers.CancelSingle(ctx, rec); err != nil {
		log.Printf("Failed to cancel trigger of %s: %v", rec.ReminderID, err)
	}
	return store.UpsertReminder(ctx, &next)
}

func (d *Dispatcher) dismiss(ctx context.Context, store Store, rec *models.ReminderRecord) error {
	if err := d.triggers.CancelSingle(ctx, rec); err != nil {
		log.Printf("Failed to cancel trigger of %s: %v", rec.ReminderID, err)
	}
	return store.DeleteReminder(ctx, rec.ReminderID)
}

func (d *Dispatcher) deferOneDay(ctx context.Context, accountID string, store Store, rec *models.ReminderRecord) error {
	sched, err := store.GetSchedule(ctx, rec.ScheduleID)
	if errors.Is(err, models.ErrNotFound) {
		return d.dismiss(ctx, store, rec)
	}
	if err != nil {
		return err
	}

	alarm := models.Alarm1DayBefore
	if sched.AllDay {
		alarm = models.Alarm15MinutesBefore
	}
	if err := store.UpdateScheduleAlarm(ctx, sched.ScheduleID, alarm); err != nil {
		return fmt.Errorf("failed to change alarm of %s: %w", sched.ScheduleID, err)
	}
	if err := d.dismiss(ctx, store, rec); err != nil {
		return err
	}
	d.rederive.Notify(accountID, false)
	return nil
}

func body(sched *models.Schedule, rec *models.ReminderRecord) string {
	var when string
	if sched.AllDay {
		when = rec.Start.Format("Mon, Jan 2") + " (all day)"
	} else {
		when = rec.Start.Format("Mon, Jan 2 15:04") + " - " + rec.End.Format("15:04")
	}
	if sched.IsRecurring() {
		when += ", " + rrule.Describe(sched.RecurrenceRule)
	}
	if sched.Description != "" {
		return when + "\n" + sched.Description
	}
	return when
}
