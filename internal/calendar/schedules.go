package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/festival"
	"github.com/hray3182/calendard/internal/materialize"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/repository"
	"github.com/hray3182/calendard/internal/rrule"
)

// Days materializes the account's schedules over [start, end]. Local
// accounts get festival entries when the locale asks for them.
func (s *Service) Days(ctx context.Context, accountID string, start, end time.Time, keyword string) (materialize.Days, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return nil, err
	}

	repo := repository.NewScheduleRepository(db)
	var schedules []*models.Schedule
	if keyword != "" {
		schedules, err = repo.Search(ctx, keyword)
	} else {
		schedules, err = repo.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	days := s.materializer.Materialize(schedules, start, end, true)
	if !acct.IsNetwork() && festival.Enabled(s.Locale(ctx)) {
		days.AddFestivals(s.festivals, start, end, keyword)
	}
	return days, nil
}

// Occurrences is Days flattened into one ordered list.
func (s *Service) Occurrences(ctx context.Context, accountID string, start, end time.Time, keyword string) ([]*models.Schedule, error) {
	days, err := s.Days(ctx, accountID, start, end, keyword)
	if err != nil {
		return nil, err
	}
	return days.Flatten(), nil
}

func (s *Service) GetSchedule(ctx context.Context, accountID, scheduleID string) (*models.Schedule, error) {
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sched, err := repository.NewScheduleRepository(db).GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched.Deleted {
		return nil, repository.ErrNotFound
	}
	return sched, nil
}

func validate(sched *models.Schedule) error {
	if sched.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSchedule)
	}
	if sched.Start.IsZero() || sched.End.Before(sched.Start) {
		return fmt.Errorf("%w: end before start", ErrInvalidSchedule)
	}
	if !sched.Alarm.Valid() {
		return fmt.Errorf("%w: unknown alarm %d", ErrInvalidSchedule, sched.Alarm)
	}
	// An unreadable rule is dropped rather than rejecting the whole schedule.
	if sched.IsRecurring() {
		if _, err := rrule.ParseOption(sched.RecurrenceRule); err != nil {
			log.Printf("Ignoring recurrence rule of %q: %v", sched.Title, err)
			sched.RecurrenceRule = ""
		}
	}
	if sched.IsFestival() {
		return ErrReadOnly
	}
	return nil
}

func (s *Service) CreateSchedule(ctx context.Context, accountID string, sched *models.Schedule) (*models.Schedule, error) {
	if err := validate(sched); err != nil {
		return nil, err
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if sched.ScheduleID == "" {
		sched.ScheduleID = uuid.NewString()
	}
	now := s.clock()
	sched.AccountID = accountID
	sched.RecurrenceID = nil
	sched.Deleted = false
	sched.Revision = 0
	sched.CreatedAt, sched.ModifiedAt = now, now

	err = s.write(ctx, acct, models.TaskCreate, models.TargetSchedule, sched.ScheduleID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewScheduleRepository(tx).Upsert(ctx, sched)
	})
	if err != nil {
		return nil, err
	}

	if sched.Alarm != models.AlarmNone {
		s.notify(accountID, false)
	}
	return sched, nil
}

// UpdateSchedule replaces the stored schedule. Reminders are rebuilt from
// scratch when the recurrence rule changed.
func (s *Service) UpdateSchedule(ctx context.Context, accountID string, sched *models.Schedule) (*models.Schedule, error) {
	if err := validate(sched); err != nil {
		return nil, err
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	old, err := s.GetSchedule(ctx, accountID, sched.ScheduleID)
	if err != nil {
		return nil, err
	}

	sched.AccountID = accountID
	sched.RecurrenceID = nil
	sched.Deleted = false
	sched.Revision = old.Revision + 1
	sched.CreatedAt = old.CreatedAt
	sched.ModifiedAt = s.clock()

	err = s.write(ctx, acct, models.TaskModify, models.TargetSchedule, sched.ScheduleID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewScheduleRepository(tx).Upsert(ctx, sched)
	})
	if err != nil {
		return nil, err
	}

	ruleChanged := !rrule.Equal(old.RecurrenceRule, sched.RecurrenceRule)
	if old.Alarm != models.AlarmNone || sched.Alarm != models.AlarmNone {
		s.notify(accountID, ruleChanged)
	}
	return sched, nil
}

// DeleteSchedule tombstones the schedule on network accounts so the delete
// task can reference it, and removes it outright otherwise.
func (s *Service) DeleteSchedule(ctx context.Context, accountID, scheduleID string) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	old, err := s.GetSchedule(ctx, accountID, scheduleID)
	if err != nil {
		return err
	}

	err = s.write(ctx, acct, models.TaskDelete, models.TargetSchedule, scheduleID, func(ctx context.Context, tx database.DBTX) error {
		repo := repository.NewScheduleRepository(tx)
		if !acct.IsNetwork() {
			return repo.Delete(ctx, scheduleID)
		}
		old.Deleted = true
		old.Revision++
		old.ModifiedAt = s.clock()
		return repo.Upsert(ctx, old)
	})
	if err != nil {
		return err
	}

	if old.Alarm != models.AlarmNone {
		s.notify(accountID, true)
	}
	return nil
}

// UpdateScheduleAlarm changes only the alarm. Callers hold the account lock
// and take care of re-derivation.
func (s *Service) UpdateScheduleAlarm(ctx context.Context, accountID, scheduleID string, alarm models.AlarmType) error {
	if !alarm.Valid() {
		return fmt.Errorf("%w: unknown alarm %d", ErrInvalidSchedule, alarm)
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	sched, err := s.GetSchedule(ctx, accountID, scheduleID)
	if err != nil {
		return err
	}

	sched.Alarm = alarm
	sched.Revision++
	sched.ModifiedAt = s.clock()
	return s.write(ctx, acct, models.TaskModify, models.TargetSchedule, scheduleID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewScheduleRepository(tx).Upsert(ctx, sched)
	})
}

func (s *Service) ListScheduleTypes(ctx context.Context, accountID string) ([]*models.ScheduleType, error) {
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return nil, err
	}
	types, err := repository.NewScheduleTypeRepository(db).List(ctx)
	if err != nil {
		return nil, err
	}
	live := types[:0]
	for _, t := range types {
		if !t.Deleted {
			live = append(live, t)
		}
	}
	return live, nil
}

func (s *Service) SaveScheduleType(ctx context.Context, accountID string, t *models.ScheduleType) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if t.TypeID == "" {
		t.TypeID = uuid.NewString()
	}
	t.UpdatedAt = s.clock()

	kind := models.TaskModify
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return err
	}
	if _, err := repository.NewScheduleTypeRepository(db).GetByID(ctx, t.TypeID); errors.Is(err, repository.ErrNotFound) {
		kind = models.TaskCreate
	}

	return s.write(ctx, acct, kind, models.TargetScheduleType, t.TypeID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewScheduleTypeRepository(tx).Upsert(ctx, t)
	})
}

func (s *Service) DeleteScheduleType(ctx context.Context, accountID, typeID string) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	return s.write(ctx, acct, models.TaskDelete, models.TargetScheduleType, typeID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewScheduleTypeRepository(tx).Delete(ctx, typeID)
	})
}

func (s *Service) ListColors(ctx context.Context, accountID string) ([]*models.Color, error) {
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return repository.NewColorRepository(db).List(ctx)
}

func (s *Service) SaveColor(ctx context.Context, accountID string, c *models.Color) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if c.ColorID == "" {
		c.ColorID = uuid.NewString()
	}
	c.UpdatedAt = s.clock()

	kind := models.TaskModify
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return err
	}
	if _, err := repository.NewColorRepository(db).GetByID(ctx, c.ColorID); errors.Is(err, repository.ErrNotFound) {
		kind = models.TaskCreate
	}

	return s.write(ctx, acct, kind, models.TargetColor, c.ColorID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewColorRepository(tx).Upsert(ctx, c)
	})
}

func (s *Service) DeleteColor(ctx context.Context, accountID, colorID string) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	return s.write(ctx, acct, models.TaskDelete, models.TargetColor, colorID, func(ctx context.Context, tx database.DBTX) error {
		return repository.NewColorRepository(tx).Delete(ctx, colorID)
	})
}

// write runs fn in a transaction on the account store and, for network
// accounts, appends the matching upload task in the same transaction.
func (s *Service) write(ctx context.Context, acct *models.Account, kind models.TaskKind, target models.TaskTarget, targetID string, fn func(ctx context.Context, tx database.DBTX) error) error {
	db, err := s.LocalDB(ctx, acct.AccountID)
	if err != nil {
		return err
	}

	err = database.WithTx(ctx, db, func(ctx context.Context, tx database.DBTX) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if !acct.IsNetwork() {
			return nil
		}
		return repository.NewUploadTaskRepository(tx).Append(ctx, kind, target, targetID)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", targetID, err)
	}

	if acct.IsNetwork() && s.listener != nil {
		s.listener.TasksQueued(acct.AccountID)
	}
	return nil
}

func (s *Service) notify(accountID string, clear bool) {
	if s.listener != nil {
		s.listener.Notify(accountID, clear)
	}
}
