// Package reminder derives pending reminder records from schedules with an
// alarm and keeps the record store and its triggers in step.
package reminder

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/calendard/internal/materialize"
	"github.com/hray3182/calendard/internal/metrics"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/trigger"
)

const (
	// lookBehind keeps reminders that fired shortly before the horizon.
	lookBehind = 9 * time.Hour

	DefaultCadence = 10 * time.Minute

	// missedGrace is how long a due trigger may take to reach the
	// dispatcher before the record counts as missed.
	missedGrace = time.Minute
)

// Store is the per-account view the deriver reads and writes.
type Store interface {
	ListSchedulesWithAlarm(ctx context.Context) ([]*models.Schedule, error)
	ListReminders(ctx context.Context) ([]*models.ReminderRecord, error)
	UpsertReminder(ctx context.Context, rec *models.ReminderRecord) error
	DeleteReminder(ctx context.Context, reminderID string) error
	ClearReminders(ctx context.Context) error
}

// Triggers is implemented by *trigger.Scheduler.
type Triggers interface {
	Reconcile(ctx context.Context, accountID string, records []*models.ReminderRecord) error
	CancelAll(ctx context.Context, accountID string) error
	CancelSingle(ctx context.Context, rec *models.ReminderRecord) error
}

type Deriver struct {
	materializer *materialize.Materializer
	triggers     Triggers
	metrics      metrics.Sink
	cadence      time.Duration
	clock        func() time.Time
}

func NewDeriver(triggers Triggers, cadence time.Duration, sink metrics.Sink) *Deriver {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Deriver{
		materializer: materialize.New(),
		triggers:     triggers,
		metrics:      sink,
		cadence:      cadence,
		clock:        time.Now,
	}
}

// Horizon is the window of trigger times considered at now.
func (d *Deriver) Horizon(now time.Time) (time.Time, time.Time) {
	return now.Add(-lookBehind), now.Add(d.cadence + models.MaxAlarmLead)
}

// Candidates returns one fresh record per occurrence whose alarm falls
// inside the horizon at now.
func (d *Deriver) Candidates(accountID string, schedules []*models.Schedule, now time.Time) []*models.ReminderRecord {
	from, to := d.Horizon(now)
	days := d.materializer.Materialize(schedules, from, to.Add(models.MaxAlarmLead), false)

	var out []*models.ReminderRecord
	for _, occ := range days.Flatten() {
		at, ok := occ.Alarm.TriggerTime(occ.Start)
		if !ok || at.Before(from) || at.After(to) {
			continue
		}
		out = append(out, &models.ReminderRecord{
			ReminderID:   uuid.NewString(),
			AccountID:    accountID,
			ScheduleID:   occ.ScheduleID,
			RecurrenceID: occ.RecurrenceID,
			Start:        occ.Start,
			End:          occ.End,
			AlarmAt:      at,
			RemindAt:     at,
			CreatedAt:    now,
		})
	}
	return out
}

// Derive rebuilds the account's reminder records and registers their
// triggers. Unfired records matching a candidate exactly are kept as they
// are, unfired records without a match are superseded, and occurrences that
// already fired are never derived again. Fired records are dropped once their
// occurrence leaves the horizon or their schedule is gone. Unfired records
// whose time passed unseen are armed again. With clear set the store is wiped
// first and only fired records survive.
func (d *Deriver) Derive(ctx context.Context, accountID string, store Store, clear bool) (records []*models.ReminderRecord, err error) {
	started := d.clock()
	defer func() {
		d.metrics.DerivationCompleted(d.clock().Sub(started), len(records), err)
	}()

	schedules, err := store.ListSchedulesWithAlarm(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	existing, err := store.ListReminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	candidates := d.Candidates(accountID, schedules, started)

	live := make(map[string]bool, len(schedules))
	for _, sc := range schedules {
		live[sc.ScheduleID] = true
	}
	from, _ := d.Horizon(started)

	fired := make(map[string]*models.ReminderRecord)
	unfired := make(map[string]*models.ReminderRecord)
	for _, rec := range existing {
		if !rec.Fired() {
			unfired[rec.OccurrenceKey()] = rec
			continue
		}
		// A shown record is kept until its occurrence leaves the horizon or
		// its schedule goes away.
		if rec.End.Before(from) || !live[rec.ScheduleID] {
			if err := d.triggers.CancelSingle(ctx, rec); err != nil {
				log.Printf("Failed to cancel expired reminder %s: %v", rec.ReminderID, err)
			}
			if err := store.DeleteReminder(ctx, rec.ReminderID); err != nil {
				return nil, fmt.Errorf("failed to delete reminder %s: %w", rec.ReminderID, err)
			}
			continue
		}
		fired[rec.OccurrenceKey()] = rec
	}

	var final []*models.ReminderRecord
	// Records already in the store in their current form.
	stored := make(map[string]bool)
	if clear {
		if err := d.triggers.CancelAll(ctx, accountID); err != nil {
			return nil, err
		}
		if err := store.ClearReminders(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear reminders: %w", err)
		}
		for _, rec := range fired {
			final = append(final, rec)
		}
		for _, c := range candidates {
			if _, ok := fired[c.OccurrenceKey()]; ok {
				continue
			}
			final = append(final, c)
		}
	} else {
		kept := make(map[string]bool)
		var fresh []*models.ReminderRecord
		for _, c := range candidates {
			key := c.OccurrenceKey()
			if _, ok := fired[key]; ok {
				continue
			}
			if u, ok := unfired[key]; ok && u.AlarmAt.Equal(c.AlarmAt) {
				kept[key] = true
				continue
			}
			fresh = append(fresh, c)
		}

		for key, u := range unfired {
			if kept[key] {
				final = append(final, u)
				stored[u.ReminderID] = true
				continue
			}
			if err := d.triggers.CancelSingle(ctx, u); err != nil {
				log.Printf("Failed to cancel superseded reminder %s: %v", u.ReminderID, err)
			}
			if err := store.DeleteReminder(ctx, u.ReminderID); err != nil {
				return nil, fmt.Errorf("failed to delete reminder %s: %w", u.ReminderID, err)
			}
		}
		for _, rec := range fired {
			final = append(final, rec)
			stored[rec.ReminderID] = true
		}
		final = append(final, fresh...)
	}

	for _, rec := range final {
		// Never shown although its time passed: the process was down or the
		// delivery failed. Fire it again shortly.
		if !rec.Fired() && rec.RemindAt.Before(started.Add(-missedGrace)) {
			rec.RemindAt = started.Add(missedGrace)
			delete(stored, rec.ReminderID)
		}
		if rec.RemindAt.After(started) {
			name := trigger.Name(accountID, rec.ReminderID, rec.SnoozeCount)
			if rec.TriggerName != name {
				rec.TriggerName = name
				delete(stored, rec.ReminderID)
			}
		}
		if stored[rec.ReminderID] {
			continue
		}
		if err := store.UpsertReminder(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to write reminder %s: %w", rec.ReminderID, err)
		}
	}

	if err := d.triggers.Reconcile(ctx, accountID, final); err != nil {
		return nil, err
	}

	sort.Slice(final, func(i, j int) bool {
		if !final[i].RemindAt.Equal(final[j].RemindAt) {
			return final[i].RemindAt.Before(final[j].RemindAt)
		}
		return final[i].ReminderID < final[j].ReminderID
	})
	return final, nil
}
