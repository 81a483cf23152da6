package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/calendard/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	reminders map[string]*models.ReminderRecord
	schedules map[string]*models.Schedule
	alarms    map[string]models.AlarmType
}

func (s *fakeStore) GetReminder(_ context.Context, id string) (*models.ReminderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *fakeStore) UpsertReminder(_ context.Context, rec *models.ReminderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rec
	s.reminders[rec.ReminderID] = &c
	return nil
}

func (s *fakeStore) DeleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reminders, id)
	return nil
}

func (s *fakeStore) GetSchedule(_ context.Context, id string) (*models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return sc.Clone(), nil
}

func (s *fakeStore) UpdateScheduleAlarm(_ context.Context, id string, alarm models.AlarmType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[id] = alarm
	return nil
}

type fakeStores struct {
	store *fakeStore
	mu    sync.Mutex
}

func (f *fakeStores) ReminderStore(context.Context, string) (Store, error) { return f.store, nil }

func (f *fakeStores) FindReminder(_ context.Context, id string) (string, error) {
	if _, err := f.store.GetReminder(context.Background(), id); err != nil {
		return "", err
	}
	return "acct", nil
}

func (f *fakeStores) Lock(string) func() {
	f.mu.Lock()
	return f.mu.Unlock
}

type fakeNotifier struct {
	shown   []Notification
	closed  []int
	nextID  int
	showErr error
}

func (n *fakeNotifier) Show(_ context.Context, note Notification) (int, error) {
	if n.showErr != nil {
		return 0, n.showErr
	}
	n.nextID++
	n.shown = append(n.shown, note)
	return n.nextID, nil
}

func (n *fakeNotifier) Close(_ context.Context, id int) error {
	n.closed = append(n.closed, id)
	return nil
}

type fakeTriggers struct {
	registered  []string
	canceled    []string
	registerErr error
}

func (f *fakeTriggers) Register(_ context.Context, rec *models.ReminderRecord) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	rec.TriggerName = rec.ReminderID + "-" + string(rune('0'+rec.SnoozeCount))
	f.registered = append(f.registered, rec.TriggerName)
	return nil
}

func (f *fakeTriggers) CancelSingle(_ context.Context, rec *models.ReminderRecord) error {
	if rec.TriggerName != "" {
		f.canceled = append(f.canceled, rec.TriggerName)
	}
	return nil
}

type fakeRederiver struct {
	accounts []string
}

func (f *fakeRederiver) Notify(accountID string, _ bool) {
	f.accounts = append(f.accounts, accountID)
}

type fixture struct {
	now      time.Time
	store    *fakeStore
	notifier *fakeNotifier
	triggers *fakeTriggers
	rederive *fakeRederiver
	d        *Dispatcher
}

func newFixture(t *testing.T, sched *models.Schedule, rec *models.ReminderRecord) *fixture {
	t.Helper()
	f := &fixture{
		now: time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
		store: &fakeStore{
			reminders: map[string]*models.ReminderRecord{},
			schedules: map[string]*models.Schedule{},
			alarms:    map[string]models.AlarmType{},
		},
		notifier: &fakeNotifier{},
		triggers: &fakeTriggers{},
		rederive: &fakeRederiver{},
	}
	if sched != nil {
		f.store.schedules[sched.ScheduleID] = sched
	}
	if rec != nil {
		f.store.reminders[rec.ReminderID] = rec
	}
	f.d = NewDispatcher(&fakeStores{store: f.store}, f.notifier, f.triggers, f.rederive, nil)
	f.d.clock = func() time.Time { return f.now }
	return f
}

func meeting(start time.Time) (*models.Schedule, *models.ReminderRecord) {
	sched := &models.Schedule{ScheduleID: "s1", Title: "Review", Start: start, End: start.Add(time.Hour), Alarm: models.Alarm15MinutesBefore}
	rec := &models.ReminderRecord{
		ReminderID: "r1", AccountID: "acct", ScheduleID: "s1",
		Start: start, End: start.Add(time.Hour),
		AlarmAt: start.Add(-15 * time.Minute), RemindAt: start.Add(-15 * time.Minute),
		TriggerName: "r1-0",
	}
	return sched, rec
}

func TestSnoozeDelaySequence(t *testing.T) {
	var got []time.Duration
	for n := 1; n <= 12; n++ {
		got = append(got, SnoozeDelay(n)/time.Minute)
	}
	assert.Equal(t, []time.Duration{10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 60}, got)
}

func TestRemindLaterHiddenWhenSaturated(t *testing.T) {
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	start := now.Add(3 * time.Hour)

	assert.Contains(t, AvailableActions(start, 10, now), ActionRemindLater)
	assert.NotContains(t, AvailableActions(start, 11, now), ActionRemindLater)
	assert.NotContains(t, AvailableActions(start, 11, now), ActionRemindLater15m)
}

func TestStartedOccurrenceOffersOnlyDefaultAndClose(t *testing.T) {
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []Action{ActionDefault, ActionClose}, AvailableActions(now, 0, now))
	assert.Equal(t, []Action{ActionDefault, ActionClose}, AvailableActions(now.Add(-time.Hour), 0, now))
}

func TestDayBasedActions(t *testing.T) {
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	soon := AvailableActions(now.Add(24*time.Hour), 0, now)
	assert.NotContains(t, soon, ActionTomorrow)
	assert.NotContains(t, soon, ActionOneDayBefore)

	far := AvailableActions(time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC), 0, now)
	assert.Contains(t, far, ActionTomorrow)
	assert.Contains(t, far, ActionOneDayBefore)

	snoozed := AvailableActions(time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC), 1, now)
	assert.Contains(t, snoozed, ActionTomorrow)
	assert.NotContains(t, snoozed, ActionOneDayBefore)
}

func TestParseAction(t *testing.T) {
	for a := ActionDefault; a < ActionUnknown; a++ {
		assert.Equal(t, a, ParseAction(a.Code()))
	}
	assert.Equal(t, ActionUnknown, ParseAction("bogus"))
}

func TestFireShowsAndRecordsNotification(t *testing.T) {
	ctx := context.Background()
	sched, rec := meeting(time.Date(2024, 1, 5, 9, 15, 0, 0, time.UTC))
	f := newFixture(t, sched, rec)

	require.NoError(t, f.d.Fire(ctx, "acct", "r1"))
	require.Len(t, f.notifier.shown, 1)
	assert.Equal(t, "Review", f.notifier.shown[0].Title)
	assert.Contains(t, f.notifier.shown[0].Actions, ActionRemindLater)
	assert.Equal(t, 1, f.store.reminders["r1"].NotifyID)

	// A second fire (after a snooze) replaces the shown notification.
	require.NoError(t, f.d.Fire(ctx, "acct", "r1"))
	assert.Equal(t, []int{1}, f.notifier.closed)
	assert.Equal(t, 2, f.store.reminders["r1"].NotifyID)
}

func TestFailedShowRearmsReminder(t *testing.T) {
	ctx := context.Background()
	sched, rec := meeting(time.Date(2024, 1, 5, 9, 15, 0, 0, time.UTC))
	f := newFixture(t, sched, rec)
	f.notifier.showErr = errors.New("telegram unavailable")

	require.Error(t, f.d.Fire(ctx, "acct", "r1"))
	got := f.store.reminders["r1"]
	assert.False(t, got.Fired())
	assert.Equal(t, f.now.Add(RetryDelay), got.RemindAt)
	assert.Equal(t, []string{"r1-0"}, f.triggers.registered)

	f.notifier.showErr = nil
	f.now = f.now.Add(RetryDelay)
	require.NoError(t, f.d.Fire(ctx, "acct", "r1"))
	assert.Equal(t, 1, f.store.reminders["r1"].NotifyID)
}

func TestFireMissingReminderIsNoop(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.d.Fire(context.Background(), "acct", "gone"))
	assert.Empty(t, f.notifier.shown)
}

func TestFireWithMissingScheduleDropsRecord(t *testing.T) {
	_, rec := meeting(time.Date(2024, 1, 5, 9, 15, 0, 0, time.UTC))
	f := newFixture(t, nil, rec)
	require.NoError(t, f.d.Fire(context.Background(), "acct", "r1"))
	assert.Empty(t, f.notifier.shown)
	assert.Empty(t, f.store.reminders)
}

func TestRemindLaterReschedules(t *testing.T) {
	ctx := context.Background()
	sched, rec := meeting(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC))
	rec.NotifyID = 3
	f := newFixture(t, sched, rec)

	require.NoError(t, f.d.HandleAction(ctx, "acct", "r1", ActionRemindLater))
	got := f.store.reminders["r1"]
	assert.Equal(t, 1, got.SnoozeCount)
	assert.Equal(t, f.now.Add(10*time.Minute), got.RemindAt)
	assert.Equal(t, []string{"r1-0"}, f.triggers.canceled)
	assert.Equal(t, "r1-1", got.TriggerName)

	require.NoError(t, f.d.HandleAction(ctx, "acct", "r1", ActionRemindLater))
	got = f.store.reminders["r1"]
	assert.Equal(t, 2, got.SnoozeCount)
	assert.Equal(t, f.now.Add(15*time.Minute), got.RemindAt)
	assert.Equal(t, []string{"r1-0", "r1-1"}, f.triggers.canceled)
}

func TestFailedSnoozeKeepsReminder(t *testing.T) {
	sched, rec := meeting(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC))
	rec.NotifyID = 3
	f := newFixture(t, sched, rec)
	f.triggers.registerErr = errors.New("disk full")

	require.Error(t, f.d.HandleAction(context.Background(), "acct", "r1", ActionRemindLater))
	got := f.store.reminders["r1"]
	assert.Equal(t, 0, got.SnoozeCount)
	assert.Equal(t, rec.RemindAt, got.RemindAt)
	assert.Equal(t, "r1-0", got.TriggerName)
	assert.Empty(t, f.triggers.canceled)
}

func TestFixedSnoozes(t *testing.T) {
	cases := map[Action]time.Duration{
		ActionRemindLater15m: 15 * time.Minute,
		ActionRemindLater1h:  time.Hour,
		ActionRemindLater4h:  4 * time.Hour,
		ActionTomorrow:       24 * time.Hour,
	}
	for action, delay := range cases {
		sched, rec := meeting(time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC))
		f := newFixture(t, sched, rec)
		require.NoError(t, f.d.HandleAction(context.Background(), "acct", "r1", action))
		assert.Equal(t, f.now.Add(delay), f.store.reminders["r1"].RemindAt, action.Code())
	}
}

func TestCloseAndOpenDeleteRecord(t *testing.T) {
	for _, action := range []Action{ActionClose, ActionOpen, ActionDefault, ActionUnknown} {
		sched, rec := meeting(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC))
		f := newFixture(t, sched, rec)
		require.NoError(t, f.d.HandleAction(context.Background(), "acct", "r1", action))
		assert.Empty(t, f.store.reminders, action.Code())
		assert.Equal(t, []string{"r1-0"}, f.triggers.canceled)
	}
}

func TestOneDayBeforeChangesAlarm(t *testing.T) {
	ctx := context.Background()

	sched, rec := meeting(time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, sched, rec)
	require.NoError(t, f.d.HandleAction(ctx, "acct", "r1", ActionOneDayBefore))
	assert.Equal(t, models.Alarm1DayBefore, f.store.alarms["s1"])
	assert.Empty(t, f.store.reminders)
	assert.Equal(t, []string{"acct"}, f.rederive.accounts)

	allDay, rec2 := meeting(time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC))
	allDay.AllDay = true
	f = newFixture(t, allDay, rec2)
	require.NoError(t, f.d.HandleAction(ctx, "acct", "r1", ActionOneDayBefore))
	assert.Equal(t, models.Alarm15MinutesBefore, f.store.alarms["s1"])
}

func TestActionOnMissingRecordIsNoop(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.d.HandleAction(context.Background(), "acct", "gone", ActionRemindLater))
	require.NoError(t, f.d.HandleCallback(context.Background(), "gone", ActionClose))
	assert.Empty(t, f.triggers.registered)
}
