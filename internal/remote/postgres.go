package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hray3182/calendard/internal/database"
)

// PostgresStore keeps snapshots as rows of calendar_snapshots.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Download(ctx context.Context, accountID, dir string) (string, error) {
	var data []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT data FROM calendar_snapshots WHERE account_id = $1`,
		accountID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoData
	}
	if err != nil {
		return "", fmt.Errorf("failed to download snapshot: %w", err)
	}
	return writeTemp(dir, bytes.NewReader(data))
}

func (s *PostgresStore) Upload(ctx context.Context, accountID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO calendar_snapshots (account_id, data, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (account_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		accountID, data,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 53100 disk_full, 53400 configuration_limit_exceeded
		if errors.As(err, &pgErr) && (pgErr.Code == "53100" || pgErr.Code == "53400") {
			return fmt.Errorf("%w: %s", ErrStorageFull, pgErr.Message)
		}
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}
