package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/metrics"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/remote"
	"github.com/hray3182/calendard/internal/repository"
)

const acct = "acct-1"

type memRemote struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	uploads   int
	// during runs inside Upload before the object is stored.
	during func(ctx context.Context)
}

func newMemRemote() *memRemote {
	return &memRemote{objects: make(map[string][]byte)}
}

func (m *memRemote) Download(_ context.Context, accountID, dir string) (string, error) {
	m.mu.Lock()
	data, ok := m.objects[accountID]
	m.mu.Unlock()
	if !ok {
		return "", remote.ErrNoData
	}
	f, err := os.CreateTemp(dir, "snapshot-*.db")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (m *memRemote) Upload(ctx context.Context, accountID, path string) error {
	if m.during != nil {
		m.during(ctx)
	}
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[accountID] = data
	m.uploads++
	return nil
}

type fakeStores struct {
	mu       sync.Mutex
	manager  *sql.DB
	local    *sql.DB
	accounts map[string]*models.Account
	states   map[string]models.SyncState
}

func (f *fakeStores) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	a, ok := f.accounts[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (f *fakeStores) LocalDB(context.Context, string) (*sql.DB, error) {
	return f.local, nil
}

func (f *fakeStores) ManagerDB() *sql.DB {
	return f.manager
}

func (f *fakeStores) SetSyncState(_ context.Context, accountID string, state models.SyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[accountID] = state
	return nil
}

func (f *fakeStores) state(accountID string) models.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[accountID]
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	stores  *fakeStores
	remote  *memRemote
	engine  *Engine
	workDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	manager, err := database.OpenSQLite(ctx, ":memory:", database.SchemaManager)
	require.NoError(t, err)
	local, err := database.OpenSQLite(ctx, ":memory:", database.SchemaAccount)
	require.NoError(t, err)
	t.Cleanup(func() {
		manager.Close()
		local.Close()
	})

	stores := &fakeStores{
		manager: manager,
		local:   local,
		accounts: map[string]*models.Account{
			acct:    {AccountID: acct, Type: models.AccountNetwork, SyncEnabled: true, Direction: models.SyncBoth},
			"local": {AccountID: "local", Type: models.AccountLocal},
		},
		states: make(map[string]models.SyncState),
	}
	rs := newMemRemote()
	workDir := dir + "/work"

	return &harness{
		t:       t,
		ctx:     ctx,
		stores:  stores,
		remote:  rs,
		engine:  NewEngine(stores, rs, workDir, metrics.NewNoopSink()),
		workDir: workDir,
	}
}

func (h *harness) addSchedule(id, title string) {
	h.t.Helper()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &models.Schedule{
		ScheduleID: id,
		AccountID:  acct,
		TypeID:     "type-work",
		Title:      title,
		Start:      start,
		End:        start.Add(time.Hour),
		CreatedAt:  start,
		ModifiedAt: start,
	}
	require.NoError(h.t, repository.NewScheduleRepository(h.stores.local).Upsert(h.ctx, s))
	require.NoError(h.t, repository.NewUploadTaskRepository(h.stores.local).Append(h.ctx, models.TaskCreate, models.TargetSchedule, id))
}

func (h *harness) deleteSchedule(id string) {
	h.t.Helper()
	repo := repository.NewScheduleRepository(h.stores.local)
	s, err := repo.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	s.Deleted = true
	s.Revision++
	require.NoError(h.t, repo.Upsert(h.ctx, s))
	require.NoError(h.t, repository.NewUploadTaskRepository(h.stores.local).Append(h.ctx, models.TaskDelete, models.TargetSchedule, id))
}

// withRemote opens the stored snapshot, lets fn inspect or edit it and
// stores the result back.
func (h *harness) withRemote(fn func(db *sql.DB)) {
	h.t.Helper()
	require.NoError(h.t, os.MkdirAll(h.workDir, 0o700))
	path, err := h.remote.Download(h.ctx, acct, h.workDir)
	require.NoError(h.t, err)
	defer removeSnapshot(path)

	db, err := database.OpenSQLite(h.ctx, path, database.SchemaSnapshot)
	require.NoError(h.t, err)
	fn(db)
	require.NoError(h.t, db.Close())

	data, err := os.ReadFile(path)
	require.NoError(h.t, err)
	h.remote.mu.Lock()
	h.remote.objects[acct] = data
	h.remote.mu.Unlock()
}

func (h *harness) remoteScheduleIDs() []string {
	var ids []string
	h.withRemote(func(db *sql.DB) {
		list, err := repository.NewScheduleRepository(db).ListAll(h.ctx)
		require.NoError(h.t, err)
		for _, s := range list {
			ids = append(ids, s.ScheduleID)
		}
	})
	return ids
}

func (h *harness) localScheduleIDs() []string {
	list, err := repository.NewScheduleRepository(h.stores.local).ListAll(h.ctx)
	require.NoError(h.t, err)
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ScheduleID)
	}
	return ids
}

func (h *harness) taskCount() int {
	n, err := repository.NewUploadTaskRepository(h.stores.local).Count(h.ctx)
	require.NoError(h.t, err)
	return n
}

// dump renders every synced table of db for before/after comparison.
func (h *harness) dump(db *sql.DB) string {
	h.t.Helper()
	var out string
	for _, table := range []string{"schedules", "schedule_types", "colors", "upload_tasks", "settings"} {
		rows, err := db.QueryContext(h.ctx, "SELECT * FROM "+table+" ORDER BY 1")
		if err != nil {
			continue
		}
		cols, err := rows.Columns()
		require.NoError(h.t, err)
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			require.NoError(h.t, rows.Scan(ptrs...))
			out += fmt.Sprintf("%s %v\n", table, vals)
		}
		require.NoError(h.t, rows.Err())
		rows.Close()
	}
	return out
}

func (h *harness) workFiles() []string {
	entries, err := os.ReadDir(h.workDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(h.t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestInitialRunSeedsAndUploads(t *testing.T) {
	h := newHarness(t)
	h.addSchedule("sched-x", "X")

	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncDownload))

	assert.Equal(t, 1, h.remote.uploads, "initial run uploads even when only downloading")
	assert.Equal(t, []string{"sched-x"}, h.remoteScheduleIDs())
	assert.Equal(t, 0, h.taskCount())
	assert.Empty(t, h.workFiles())
	assert.Equal(t, models.SyncNormal, h.stores.state(acct))

	types, err := repository.NewScheduleTypeRepository(h.stores.local).List(h.ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(models.DefaultScheduleTypes), "download brings the seeded types")
}

func TestDeleteScheduleReconciles(t *testing.T) {
	h := newHarness(t)
	h.addSchedule("sched-x", "X")
	h.addSchedule("sched-y", "Y")
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))
	require.ElementsMatch(t, []string{"sched-x", "sched-y"}, h.remoteScheduleIDs())

	h.deleteSchedule("sched-x")
	require.Equal(t, 1, h.taskCount())

	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	assert.Equal(t, []string{"sched-y"}, h.remoteScheduleIDs())
	assert.Equal(t, []string{"sched-y"}, h.localScheduleIDs())
	assert.Equal(t, 0, h.taskCount())
	assert.Empty(t, h.workFiles())
}

func TestUploadOnlyPurgesConsumedTombstones(t *testing.T) {
	h := newHarness(t)
	h.addSchedule("sched-x", "X")
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncUpload))

	h.deleteSchedule("sched-x")
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncUpload))

	assert.Empty(t, h.remoteScheduleIDs())
	assert.Empty(t, h.localScheduleIDs())
}

func TestDownloadOverwritesLocal(t *testing.T) {
	h := newHarness(t)
	h.addSchedule("sched-x", "X")
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	h.withRemote(func(db *sql.DB) {
		repo := repository.NewScheduleRepository(db)
		s, err := repo.GetByID(h.ctx, "sched-x")
		require.NoError(t, err)
		s.ScheduleID = "sched-remote"
		s.Title = "from elsewhere"
		require.NoError(t, repo.Upsert(h.ctx, s))
	})

	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncDownload))
	assert.ElementsMatch(t, []string{"sched-x", "sched-remote"}, h.localScheduleIDs())
}

func TestSettingsMergeLastWriteWins(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	managerSettings := repository.NewSettingRepository(h.stores.manager)
	require.NoError(t, managerSettings.Upsert(h.ctx, &models.Setting{Key: "week_start", Value: "monday", UpdatedAt: newer}))
	require.NoError(t, managerSettings.Upsert(h.ctx, &models.Setting{Key: "locale", Value: "en", UpdatedAt: older}))

	h.withRemote(func(db *sql.DB) {
		repo := repository.NewSettingRepository(db)
		require.NoError(t, repo.Upsert(h.ctx, &models.Setting{Key: "week_start", Value: "sunday", UpdatedAt: older}))
		require.NoError(t, repo.Upsert(h.ctx, &models.Setting{Key: "locale", Value: "zh_CN", UpdatedAt: newer}))
		require.NoError(t, repo.Upsert(h.ctx, &models.Setting{Key: "timezone", Value: "Asia/Taipei", UpdatedAt: older}))
	})

	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	want := map[string]string{"week_start": "monday", "locale": "zh_CN", "timezone": "Asia/Taipei"}

	local, err := managerSettings.List(h.ctx)
	require.NoError(t, err)
	got := map[string]string{}
	for _, s := range local {
		got[s.Key] = s.Value
	}
	assert.Equal(t, want, got)

	h.withRemote(func(db *sql.DB) {
		list, err := repository.NewSettingRepository(db).List(h.ctx)
		require.NoError(t, err)
		got := map[string]string{}
		for _, s := range list {
			got[s.Key] = s.Value
		}
		assert.Equal(t, want, got)
	})
}

func TestManagerStoreIsUsableDuringUpload(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.withRemote(func(db *sql.DB) {
		repo := repository.NewSettingRepository(db)
		require.NoError(t, repo.Upsert(h.ctx, &models.Setting{Key: "locale", Value: "zh_CN", UpdatedAt: older}))
		require.NoError(t, repo.Upsert(h.ctx, &models.Setting{Key: "timezone", Value: "Asia/Taipei", UpdatedAt: older}))
	})

	settings := repository.NewSettingRepository(h.stores.manager)
	var duringErr error
	h.remote.during = func(context.Context) {
		ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
		defer cancel()
		if _, err := settings.List(ctx); err != nil {
			duringErr = err
			return
		}
		duringErr = settings.Upsert(ctx, &models.Setting{Key: "locale", Value: "en", UpdatedAt: older.Add(time.Hour)})
	}

	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))
	require.NoError(t, duringErr)

	// The write made during the upload is newer than the merged value.
	locale, err := settings.Get(h.ctx, "locale")
	require.NoError(t, err)
	assert.Equal(t, "en", locale.Value)
	tz, err := settings.Get(h.ctx, "timezone")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", tz.Value)
}

func TestFailureLeavesEverythingUntouched(t *testing.T) {
	h := newHarness(t)
	h.addSchedule("sched-x", "X")
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	h.addSchedule("sched-y", "Y")
	h.deleteSchedule("sched-x")
	require.NoError(t, repository.NewSettingRepository(h.stores.manager).Upsert(h.ctx,
		&models.Setting{Key: "locale", Value: "en", UpdatedAt: time.Now()}))

	localBefore := h.dump(h.stores.local)
	managerBefore := h.dump(h.stores.manager)
	remoteBefore := append([]byte(nil), h.remote.objects[acct]...)

	h.engine.failBeforeCommit = func() error { return errors.New("disk went away") }
	err := h.engine.Run(h.ctx, acct, models.SyncBoth)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, models.SyncServerException, syncErr.State)
	assert.Equal(t, models.SyncServerException, h.stores.state(acct))

	assert.Equal(t, localBefore, h.dump(h.stores.local))
	assert.Equal(t, managerBefore, h.dump(h.stores.manager))
	assert.Equal(t, remoteBefore, h.remote.objects[acct])
	assert.Empty(t, h.workFiles())
}

func TestUploadFailureKeepsTasks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		state models.SyncState
	}{
		{"network", &net.DNSError{Err: "no such host", Name: "storage.example"}, models.SyncNetworkAnomaly},
		{"storage full", fmt.Errorf("%w: quota", remote.ErrStorageFull), models.SyncStorageFull},
		{"server", errors.New("internal error"), models.SyncServerException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addSchedule("sched-x", "X")
			h.remote.uploadErr = tt.err

			err := h.engine.Run(h.ctx, acct, models.SyncUpload)
			require.Error(t, err)
			assert.Equal(t, tt.state, StateOf(err))
			assert.Equal(t, tt.state, h.stores.state(acct))
			assert.Equal(t, 1, h.taskCount())
			assert.Empty(t, h.workFiles())

			h.remote.uploadErr = nil
			require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncUpload))
			assert.Equal(t, 0, h.taskCount())
			assert.Equal(t, models.SyncNormal, h.stores.state(acct))
		})
	}
}

func TestRecoveryMarkerForcesDownload(t *testing.T) {
	h := newHarness(t)
	h.addSchedule("sched-x", "X")
	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncBoth))

	h.withRemote(func(db *sql.DB) {
		repo := repository.NewScheduleRepository(db)
		s, err := repo.GetByID(h.ctx, "sched-x")
		require.NoError(t, err)
		s.ScheduleID = "sched-z"
		require.NoError(t, repo.Upsert(h.ctx, s))
	})
	marker := h.engine.markerPath(acct)
	require.NoError(t, os.WriteFile(marker, []byte(acct), 0o600))

	require.NoError(t, h.engine.Run(h.ctx, acct, models.SyncUpload))

	assert.Contains(t, h.localScheduleIDs(), "sched-z")
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalAccountIsSkipped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Run(h.ctx, "local", models.SyncBoth))
	assert.Equal(t, 0, h.remote.uploads)
	assert.Empty(t, h.workFiles())
}
