package repository

import (
	"context"
	"time"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

const accountColumns = `account_id, name, type, sync_state, sync_enabled, direction,
	download_interval_seconds, created_at, updated_at`

type AccountRepository struct {
	db database.DBTX
}

func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Upsert(ctx context.Context, a *models.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
		   name = excluded.name, type = excluded.type, sync_state = excluded.sync_state,
		   sync_enabled = excluded.sync_enabled, direction = excluded.direction,
		   download_interval_seconds = excluded.download_interval_seconds,
		   updated_at = excluded.updated_at`,
		a.AccountID, a.Name, int(a.Type), int(a.SyncState), a.SyncEnabled, int(a.Direction),
		int64(a.DownloadInterval/time.Second), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, accountID)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) UpdateSyncState(ctx context.Context, accountID string, state models.SyncState) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET sync_state = ?, updated_at = ? WHERE account_id = ?`,
		int(state), formatTime(time.Now()), accountID,
	)
	return err
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var (
		typ, state, direction int
		interval              int64
		created, updated      string
	)
	if err := row.Scan(&a.AccountID, &a.Name, &typ, &state, &a.SyncEnabled, &direction,
		&interval, &created, &updated); err != nil {
		return nil, err
	}
	a.Type = models.AccountType(typ)
	a.SyncState = models.SyncState(state)
	a.Direction = models.SyncDirection(direction)
	a.DownloadInterval = time.Duration(interval) * time.Second
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}
