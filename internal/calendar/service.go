// Package calendar is the account registry and the schedule write path.
// Every mutation of a network account queues an upload task in the same
// transaction.
package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/festival"
	"github.com/hray3182/calendard/internal/materialize"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/repository"
)

var (
	ErrInvalidSchedule = errors.New("calendar: invalid schedule")
	ErrReadOnly        = errors.New("calendar: festival occurrences are read-only")
)

// Listener is told about changes that need follow-up work.
type Listener interface {
	// Notify asks for reminders of accountID to be derived again.
	Notify(accountID string, clear bool)
	// TasksQueued reports that a network account has new upload tasks.
	TasksQueued(accountID string)
}

type Service struct {
	manager      *sql.DB
	accounts     *repository.AccountRepository
	settings     *repository.SettingRepository
	dataDir      string
	locale       string
	festivals    *festival.Calendar
	materializer *materialize.Materializer
	listener     Listener
	clock        func() time.Time

	mu     sync.Mutex
	stores map[string]*sql.DB
	locks  map[string]*sync.Mutex
}

// NewService uses manager for the account registry and keeps account
// stores under dataDir/accounts. An empty dataDir keeps every account store
// in memory.
func NewService(manager *sql.DB, dataDir, locale string) *Service {
	return &Service{
		manager:      manager,
		accounts:     repository.NewAccountRepository(manager),
		settings:     repository.NewSettingRepository(manager),
		dataDir:      dataDir,
		locale:       locale,
		festivals:    festival.Default(),
		materializer: materialize.New(),
		clock:        time.Now,
		stores:       make(map[string]*sql.DB),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (s *Service) SetListener(l Listener) {
	s.listener = l
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, db := range s.stores {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(s.stores, id)
	}
	return errors.Join(errs...)
}

func (s *Service) ManagerDB() *sql.DB {
	return s.manager
}

// LocalDB returns the store of accountID, opening and migrating it on
// first use.
func (s *Service) LocalDB(ctx context.Context, accountID string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.stores[accountID]; ok {
		return db, nil
	}

	path := ":memory:"
	if s.dataDir != "" {
		dir := filepath.Join(s.dataDir, "accounts")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create account dir: %w", err)
		}
		path = filepath.Join(dir, accountID+".db")
	}

	db, err := database.OpenSQLite(ctx, path, database.SchemaAccount)
	if err != nil {
		return nil, err
	}
	s.stores[accountID] = db
	return db, nil
}

// Lock serializes reminder mutations of one account and returns the unlock
// function.
func (s *Service) Lock(accountID string) func() {
	s.mu.Lock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

func (s *Service) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.accounts.List(ctx)
}

// EnsureAccount registers the account if it does not exist yet and seeds
// its store with the default types and colors.
func (s *Service) EnsureAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	existing, err := s.accounts.GetByID(ctx, a.AccountID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if a.AccountID == "" {
		a.AccountID = uuid.NewString()
	}
	now := s.clock()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Direction == 0 {
		a.Direction = models.SyncBoth
	}
	if err := s.accounts.Upsert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	db, err := s.LocalDB(ctx, a.AccountID)
	if err != nil {
		return nil, err
	}
	err = database.WithTx(ctx, db, func(ctx context.Context, tx database.DBTX) error {
		colors := repository.NewColorRepository(tx)
		for _, c := range models.DefaultColors {
			c.UpdatedAt = now
			if err := colors.Upsert(ctx, &c); err != nil {
				return err
			}
		}
		types := repository.NewScheduleTypeRepository(tx)
		for _, t := range models.DefaultScheduleTypes {
			t.UpdatedAt = now
			if err := types.Upsert(ctx, &t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed account: %w", err)
	}
	return a, nil
}

// EnsureDefaultAccount makes sure at least one local account exists.
func (s *Service) EnsureDefaultAccount(ctx context.Context) (*models.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if !a.IsNetwork() {
			return a, nil
		}
	}
	return s.EnsureAccount(ctx, &models.Account{
		AccountID: "local",
		Name:      "Local",
		Type:      models.AccountLocal,
	})
}

func (s *Service) SetSyncState(ctx context.Context, accountID string, state models.SyncState) error {
	return s.accounts.UpdateSyncState(ctx, accountID, state)
}

// PendingTasks counts the queued upload tasks of accountID.
func (s *Service) PendingTasks(ctx context.Context, accountID string) (int, error) {
	db, err := s.LocalDB(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return repository.NewUploadTaskRepository(db).Count(ctx)
}

// FindReminder returns the account owning reminderID.
func (s *Service) FindReminder(ctx context.Context, reminderID string) (string, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range accounts {
		db, err := s.LocalDB(ctx, a.AccountID)
		if err != nil {
			return "", err
		}
		_, err = repository.NewReminderRepository(db).GetByID(ctx, reminderID)
		if err == nil {
			return a.AccountID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
	}
	return "", repository.ErrNotFound
}

func (s *Service) Setting(ctx context.Context, key string) (string, bool) {
	st, err := s.settings.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return st.Value, true
}

// Locale prefers the stored setting over the configured default.
func (s *Service) Locale(ctx context.Context) string {
	if v, ok := s.Setting(ctx, "locale"); ok && v != "" {
		return v
	}
	return s.locale
}
