// Package syncer reconciles the local upload-task log of a network account
// against a snapshot kept in a remote store.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/metrics"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/remote"
	"github.com/hray3182/calendard/internal/repository"
)

// Stores gives the engine the databases a run touches.
type Stores interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	LocalDB(ctx context.Context, accountID string) (*sql.DB, error)
	ManagerDB() *sql.DB
	SetSyncState(ctx context.Context, accountID string, state models.SyncState) error
}

type Engine struct {
	stores  Stores
	remote  remote.Store
	workDir string
	metrics metrics.Sink
	clock   func() time.Time

	// failBeforeCommit lets tests break a run after every merge step.
	failBeforeCommit func() error
}

func NewEngine(stores Stores, rs remote.Store, workDir string, sink metrics.Sink) *Engine {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Engine{
		stores:  stores,
		remote:  rs,
		workDir: workDir,
		metrics: sink,
		clock:   time.Now,
	}
}

// Run performs one reconciliation for accountID. Local and non-syncing
// accounts are skipped. The resulting state is recorded on the account.
func (e *Engine) Run(ctx context.Context, accountID string, direction models.SyncDirection) error {
	acct, err := e.stores.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if !acct.IsNetwork() || !acct.SyncEnabled {
		return nil
	}

	started := e.clock()
	err = e.run(ctx, acct, direction)
	state := StateOf(err)

	if serr := e.stores.SetSyncState(ctx, accountID, state); serr != nil {
		log.Printf("Failed to record sync state for %s: %v", accountID, serr)
	}
	e.metrics.SyncCompleted(state.String(), e.clock().Sub(started))
	return err
}

func (e *Engine) run(ctx context.Context, acct *models.Account, direction models.SyncDirection) error {
	marker := e.markerPath(acct.AccountID)
	if _, err := os.Stat(marker); err == nil {
		// A previous run died between the manager and local commits.
		log.Printf("[syncer] recovery marker found for %s, forcing download", acct.AccountID)
		direction |= models.SyncDownload
	}

	snapPath, initial, err := e.fetch(ctx, acct.AccountID)
	if err != nil {
		return err
	}
	defer removeSnapshot(snapPath)

	snapDB, err := database.OpenSQLite(ctx, snapPath, database.SchemaSnapshot)
	if err != nil {
		return newSyncError("open snapshot", err)
	}
	defer snapDB.Close()

	if initial {
		if err := seedSnapshot(ctx, snapDB, e.clock()); err != nil {
			return newSyncError("seed snapshot", err)
		}
	}

	localDB, err := e.stores.LocalDB(ctx, acct.AccountID)
	if err != nil {
		return newSyncError("open local store", err)
	}

	txs := &sagaTxs{}
	defer txs.rollback()

	if txs.local, err = localDB.BeginTx(ctx, nil); err != nil {
		return newSyncError("begin local", err)
	}
	if txs.snapshot, err = snapDB.BeginTx(ctx, nil); err != nil {
		return newSyncError("begin snapshot", err)
	}

	if err := replayTasks(ctx, txs.local, txs.snapshot); err != nil {
		return newSyncError("replay tasks", err)
	}
	var staged []*models.Setting
	if direction.Has(models.SyncDownload) {
		if err := overwriteLocal(ctx, txs.local, txs.snapshot); err != nil {
			return newSyncError("overwrite local", err)
		}
		if staged, err = mergeSettings(ctx, e.stores.ManagerDB(), txs.snapshot); err != nil {
			return newSyncError("merge settings", err)
		}
	}
	if e.failBeforeCommit != nil {
		if err := e.failBeforeCommit(); err != nil {
			return newSyncError("merge", err)
		}
	}

	if err := txs.commitSnapshot(); err != nil {
		return newSyncError("commit snapshot", err)
	}
	if err := snapDB.Close(); err != nil {
		return newSyncError("close snapshot", err)
	}

	if initial || direction.Has(models.SyncUpload) {
		if err := e.remote.Upload(ctx, acct.AccountID, snapPath); err != nil {
			return newSyncError("upload", err)
		}
	}

	// The manager store is shared by the whole process; its transaction only
	// spans the final writes, never the upload.
	if txs.manager, err = e.stores.ManagerDB().BeginTx(ctx, nil); err != nil {
		return newSyncError("begin manager", err)
	}
	if err := applySettings(ctx, txs.manager, staged); err != nil {
		return newSyncError("apply settings", err)
	}
	if err := os.WriteFile(marker, []byte(acct.AccountID), 0o600); err != nil {
		return newSyncError("write recovery marker", err)
	}
	if err := txs.commitManager(); err != nil {
		return newSyncError("commit manager", err)
	}
	if err := txs.commitLocal(); err != nil {
		return newSyncError("commit local", err)
	}
	if err := os.Remove(marker); err != nil {
		log.Printf("Failed to remove recovery marker %s: %v", marker, err)
	}
	return nil
}

// fetch downloads the account snapshot, or creates an empty file for the
// first upload when the remote has nothing yet.
func (e *Engine) fetch(ctx context.Context, accountID string) (string, bool, error) {
	if err := os.MkdirAll(e.workDir, 0o700); err != nil {
		return "", false, newSyncError("prepare work dir", err)
	}

	path, err := e.remote.Download(ctx, accountID, e.workDir)
	if err == nil {
		return path, false, nil
	}
	if !errors.Is(err, remote.ErrNoData) {
		return "", false, newSyncError("download", err)
	}

	f, err := os.CreateTemp(e.workDir, "snapshot-*.db")
	if err != nil {
		return "", false, newSyncError("create snapshot", err)
	}
	f.Close()
	return f.Name(), true, nil
}

func (e *Engine) markerPath(accountID string) string {
	return filepath.Join(e.workDir, accountID+".recovery")
}

func removeSnapshot(path string) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove %s: %v", p, err)
		}
	}
}

// sagaTxs tracks the transactions still open during a run.
type sagaTxs struct {
	local, manager, snapshot *sql.Tx
}

func (t *sagaTxs) commitSnapshot() error {
	tx := t.snapshot
	t.snapshot = nil
	return tx.Commit()
}

func (t *sagaTxs) commitManager() error {
	tx := t.manager
	t.manager = nil
	return tx.Commit()
}

func (t *sagaTxs) commitLocal() error {
	tx := t.local
	t.local = nil
	return tx.Commit()
}

func (t *sagaTxs) rollback() {
	for _, tx := range []*sql.Tx{t.snapshot, t.manager, t.local} {
		if tx != nil {
			_ = tx.Rollback()
		}
	}
	t.snapshot, t.manager, t.local = nil, nil, nil
}

func seedSnapshot(ctx context.Context, db *sql.DB, now time.Time) error {
	return database.WithTx(ctx, db, func(ctx context.Context, tx database.DBTX) error {
		colors := repository.NewColorRepository(tx)
		for _, c := range models.DefaultColors {
			c.UpdatedAt = now
			if err := colors.Upsert(ctx, &c); err != nil {
				return err
			}
		}
		types := repository.NewScheduleTypeRepository(tx)
		for _, st := range models.DefaultScheduleTypes {
			st.UpdatedAt = now
			if err := types.Upsert(ctx, &st); err != nil {
				return err
			}
		}
		return nil
	})
}
