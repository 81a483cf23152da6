package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/calendard/internal/config"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/notify"
	"github.com/hray3182/calendard/internal/trigger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:          t.TempDir(),
		HTTPAddr:         "127.0.0.1:0",
		RemindInterval:   10 * time.Minute,
		SyncDebounce:     10 * time.Millisecond,
		DownloadInterval: 15 * time.Minute,
		UploadInterval:   5 * time.Minute,
		NetworkAccountID: "default",
		Locale:           "en_US",
		Timezone:         "UTC",
	}
}

func TestNewLocalOnly(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	accounts, err := a.calendar.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, models.AccountLocal, accounts[0].Type)
	assert.Nil(t, a.coordinator)
	assert.Nil(t, a.bot)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	a.api.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/accounts/local/sync", nil)
	w = httptest.NewRecorder()
	a.api.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewWithS3Backend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.RemoteBackend = "s3"
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = "http://127.0.0.1:1"
	cfg.S3Bucket = "calendars"
	cfg.S3AccessKey = "key"
	cfg.S3SecretKey = "secret"

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.coordinator)
	acct, err := a.calendar.GetAccount(ctx, "default")
	require.NoError(t, err)
	assert.True(t, acct.IsNetwork())
	assert.True(t, acct.SyncEnabled)
	assert.Equal(t, 15*time.Minute, acct.DownloadInterval)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.RemoteBackend = "ftp"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestReminderPipeline(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	start := time.Now().Add(2 * time.Hour).Truncate(time.Minute)
	sched, err := a.calendar.CreateSchedule(ctx, "local", &models.Schedule{
		TypeID: "type-work",
		Title:  "Review",
		Start:  start,
		End:    start.Add(time.Hour),
		Alarm:  models.Alarm15MinutesBefore,
	})
	require.NoError(t, err)

	store, err := schedulerAccounts{a.calendar}.ReminderStore(ctx, "local")
	require.NoError(t, err)
	records, err := a.deriver.Derive(ctx, "local", store, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, sched.ScheduleID, rec.ScheduleID)
	assert.Len(t, a.timers.Names(trigger.AccountPrefix("local")), 1)

	require.NoError(t, a.dispatcher.Fire(ctx, "local", rec.ReminderID))
	shown, err := a.calendar.FindReminder(ctx, rec.ReminderID)
	require.NoError(t, err)
	assert.Equal(t, "local", shown)

	require.NoError(t, a.dispatcher.HandleCallback(ctx, rec.ReminderID, notify.ActionClose))
	_, err = a.calendar.FindReminder(ctx, rec.ReminderID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, a.timers.Names(trigger.AccountPrefix("local")))
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLogNotifierHandles(t *testing.T) {
	n := &logNotifier{}
	first, err := n.Show(context.Background(), notify.Notification{Title: "a"})
	require.NoError(t, err)
	second, err := n.Show(context.Background(), notify.Notification{Title: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.NoError(t, n.Close(context.Background(), first))
}
