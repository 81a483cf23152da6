package calendar

import (
	"context"

	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/repository"
)

// AccountStore is the reminder view of one account store, used by the
// deriver and the dispatcher.
type AccountStore struct {
	svc       *Service
	accountID string
	schedules *repository.ScheduleRepository
	reminders *repository.ReminderRepository
}

func (s *Service) AccountStore(ctx context.Context, accountID string) (*AccountStore, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &AccountStore{
		svc:       s,
		accountID: accountID,
		schedules: repository.NewScheduleRepository(db),
		reminders: repository.NewReminderRepository(db),
	}, nil
}

func (a *AccountStore) ListSchedulesWithAlarm(ctx context.Context) ([]*models.Schedule, error) {
	return a.schedules.ListWithAlarm(ctx)
}

func (a *AccountStore) ListReminders(ctx context.Context) ([]*models.ReminderRecord, error) {
	return a.reminders.List(ctx)
}

func (a *AccountStore) GetReminder(ctx context.Context, reminderID string) (*models.ReminderRecord, error) {
	return a.reminders.GetByID(ctx, reminderID)
}

func (a *AccountStore) UpsertReminder(ctx context.Context, rec *models.ReminderRecord) error {
	return a.reminders.Upsert(ctx, rec)
}

func (a *AccountStore) DeleteReminder(ctx context.Context, reminderID string) error {
	return a.reminders.Delete(ctx, reminderID)
}

func (a *AccountStore) ClearReminders(ctx context.Context) error {
	return a.reminders.DeleteAll(ctx)
}

func (a *AccountStore) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	return a.svc.GetSchedule(ctx, a.accountID, scheduleID)
}

func (a *AccountStore) UpdateScheduleAlarm(ctx context.Context, scheduleID string, alarm models.AlarmType) error {
	return a.svc.UpdateScheduleAlarm(ctx, a.accountID, scheduleID, alarm)
}
