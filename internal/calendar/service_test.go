package calendar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/repository"
)

type notification struct {
	accountID string
	clear     bool
}

type fakeListener struct {
	mu       sync.Mutex
	notified []notification
	queued   []string
}

func (f *fakeListener) Notify(accountID string, clear bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, notification{accountID, clear})
}

func (f *fakeListener) TasksQueued(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, accountID)
}

func newTestService(t *testing.T, locale string) (*Service, *fakeListener) {
	t.Helper()
	ctx := context.Background()
	manager, err := database.OpenSQLite(ctx, ":memory:", database.SchemaManager)
	require.NoError(t, err)

	svc := NewService(manager, "", locale)
	listener := &fakeListener{}
	svc.SetListener(listener)
	t.Cleanup(func() {
		svc.Close()
		manager.Close()
	})

	_, err = svc.EnsureAccount(ctx, &models.Account{AccountID: "local", Type: models.AccountLocal})
	require.NoError(t, err)
	_, err = svc.EnsureAccount(ctx, &models.Account{AccountID: "net", Type: models.AccountNetwork, SyncEnabled: true})
	require.NoError(t, err)
	return svc, listener
}

func meeting(alarm models.AlarmType) *models.Schedule {
	start := time.Date(2024, 2, 10, 10, 0, 0, 0, time.UTC)
	return &models.Schedule{
		TypeID: "type-work",
		Title:  "Planning",
		Start:  start,
		End:    start.Add(time.Hour),
		Alarm:  alarm,
	}
}

func tasks(t *testing.T, svc *Service, accountID string) []*models.UploadTask {
	t.Helper()
	db, err := svc.LocalDB(context.Background(), accountID)
	require.NoError(t, err)
	list, err := repository.NewUploadTaskRepository(db).List(context.Background())
	require.NoError(t, err)
	return list
}

func TestEnsureAccountSeedsDefaults(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	types, err := svc.ListScheduleTypes(ctx, "local")
	require.NoError(t, err)
	assert.Len(t, types, len(models.DefaultScheduleTypes))

	colors, err := svc.ListColors(ctx, "local")
	require.NoError(t, err)
	assert.Len(t, colors, len(models.DefaultColors))

	again, err := svc.EnsureAccount(ctx, &models.Account{AccountID: "local", Name: "renamed"})
	require.NoError(t, err)
	assert.Empty(t, again.Name, "existing account is returned untouched")

	def, err := svc.EnsureDefaultAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", def.AccountID)
}

func TestCreateQueuesTaskOnlyForNetworkAccounts(t *testing.T) {
	svc, listener := newTestService(t, "")
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, "local", meeting(models.AlarmNone))
	require.NoError(t, err)
	assert.Empty(t, tasks(t, svc, "local"))

	created, err := svc.CreateSchedule(ctx, "net", meeting(models.Alarm15MinutesBefore))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ScheduleID)

	queued := tasks(t, svc, "net")
	require.Len(t, queued, 1)
	assert.Equal(t, models.TaskCreate, queued[0].Kind)
	assert.Equal(t, models.TargetSchedule, queued[0].Target)
	assert.Equal(t, created.ScheduleID, queued[0].TargetID)

	assert.Equal(t, []string{"net"}, listener.queued)
	assert.Equal(t, []notification{{"net", false}}, listener.notified)
}

func TestCreateRejectsInvalidSchedules(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	backwards := meeting(models.AlarmNone)
	backwards.End = backwards.Start.Add(-time.Minute)
	_, err := svc.CreateSchedule(ctx, "local", backwards)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	badAlarm := meeting(models.AlarmType(99))
	_, err = svc.CreateSchedule(ctx, "local", badAlarm)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCreateDropsUnreadableRule(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	s := meeting(models.AlarmNone)
	s.RecurrenceRule = "FREQ=SOMETIMES"
	created, err := svc.CreateSchedule(ctx, "local", s)
	require.NoError(t, err)
	assert.False(t, created.IsRecurring())

	stored, err := svc.GetSchedule(ctx, "local", created.ScheduleID)
	require.NoError(t, err)
	assert.Empty(t, stored.RecurrenceRule)
}

func TestUpdateClearsRemindersOnlyWhenRuleChanges(t *testing.T) {
	svc, listener := newTestService(t, "")
	ctx := context.Background()

	s := meeting(models.Alarm1HourBefore)
	s.RecurrenceRule = "FREQ=WEEKLY;BYDAY=MO,FR"
	created, err := svc.CreateSchedule(ctx, "net", s)
	require.NoError(t, err)

	same := created.Clone()
	same.Title = "Planning (moved)"
	same.RecurrenceRule = "RRULE:FREQ=WEEKLY;BYDAY=MO,FR"
	updated, err := svc.UpdateSchedule(ctx, "net", same)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Revision)

	changed := updated.Clone()
	changed.RecurrenceRule = "FREQ=DAILY"
	updated, err = svc.UpdateSchedule(ctx, "net", changed)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Revision)

	assert.Equal(t, []notification{{"net", false}, {"net", false}, {"net", true}}, listener.notified)

	queued := tasks(t, svc, "net")
	require.Len(t, queued, 3)
	assert.Equal(t, models.TaskModify, queued[2].Kind)
}

func TestDeleteTombstonesNetworkSchedules(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.CreateSchedule(ctx, "net", meeting(models.AlarmNone))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSchedule(ctx, "net", created.ScheduleID))

	_, err = svc.GetSchedule(ctx, "net", created.ScheduleID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	db, err := svc.LocalDB(ctx, "net")
	require.NoError(t, err)
	all, err := repository.NewScheduleRepository(db).ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Deleted)

	queued := tasks(t, svc, "net")
	require.Len(t, queued, 2)
	assert.Equal(t, models.TaskDelete, queued[1].Kind)
}

func TestDeleteRemovesLocalSchedules(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.CreateSchedule(ctx, "local", meeting(models.AlarmNone))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSchedule(ctx, "local", created.ScheduleID))

	db, err := svc.LocalDB(ctx, "local")
	require.NoError(t, err)
	all, err := repository.NewScheduleRepository(db).ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOccurrencesIncludeFestivalsForChineseLocalAccounts(t *testing.T) {
	svc, _ := newTestService(t, "zh_CN")
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, "local", meeting(models.AlarmNone))
	require.NoError(t, err)
	_, err = svc.CreateSchedule(ctx, "net", meeting(models.AlarmNone))
	require.NoError(t, err)

	start := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Second)

	local, err := svc.Occurrences(ctx, "local", start, end, "")
	require.NoError(t, err)
	var titles []string
	for _, o := range local {
		titles = append(titles, o.Title)
	}
	assert.Contains(t, titles, "春节")
	assert.Contains(t, titles, "Planning")

	network, err := svc.Occurrences(ctx, "net", start, end, "")
	require.NoError(t, err)
	require.Len(t, network, 1)
	assert.Equal(t, "Planning", network[0].Title)

	filtered, err := svc.Occurrences(ctx, "local", start, end, "Plan")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestFestivalsCannotBeSaved(t *testing.T) {
	svc, _ := newTestService(t, "zh_CN")
	s := meeting(models.AlarmNone)
	s.TypeID = models.FestivalTypeID
	_, err := svc.CreateSchedule(context.Background(), "local", s)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestFindReminderAndAccountStore(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.CreateSchedule(ctx, "net", meeting(models.Alarm15MinutesBefore))
	require.NoError(t, err)

	store, err := svc.AccountStore(ctx, "net")
	require.NoError(t, err)
	rec := &models.ReminderRecord{
		ReminderID: "rem-1",
		AccountID:  "net",
		ScheduleID: created.ScheduleID,
		Start:      created.Start,
		End:        created.End,
		AlarmAt:    created.Start.Add(-15 * time.Minute),
		RemindAt:   created.Start.Add(-15 * time.Minute),
	}
	require.NoError(t, store.UpsertReminder(ctx, rec))

	owner, err := svc.FindReminder(ctx, "rem-1")
	require.NoError(t, err)
	assert.Equal(t, "net", owner)

	_, err = svc.FindReminder(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.UpdateScheduleAlarm(ctx, created.ScheduleID, models.Alarm1DayBefore))
	got, err := store.GetSchedule(ctx, created.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.Alarm1DayBefore, got.Alarm)
	assert.Len(t, tasks(t, svc, "net"), 2)

	pending, err := svc.PendingTasks(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestLockSerializesPerAccount(t *testing.T) {
	svc, _ := newTestService(t, "")

	unlock := svc.Lock("net")
	acquired := make(chan struct{})
	go func() {
		release := svc.Lock("net")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	otherUnlock := svc.Lock("local")
	otherUnlock()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock never released")
	}
}
