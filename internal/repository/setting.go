package repository

import (
	"context"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

// SettingRepository stores key/value settings with their update time. The
// same table layout exists in the manager store and in snapshots.
type SettingRepository struct {
	db database.DBTX
}

func NewSettingRepository(db database.DBTX) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	s := &models.Setting{}
	var updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, dt_update FROM settings WHERE key = ?`, key,
	).Scan(&s.Key, &s.Value, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	s.UpdatedAt = parseTime(updated)
	return s, nil
}

func (r *SettingRepository) List(ctx context.Context) ([]*models.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, dt_update FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*models.Setting
	for rows.Next() {
		s := &models.Setting{}
		var updated string
		if err := rows.Scan(&s.Key, &s.Value, &updated); err != nil {
			return nil, err
		}
		s.UpdatedAt = parseTime(updated)
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (r *SettingRepository) Upsert(ctx context.Context, s *models.Setting) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, dt_update) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, dt_update = excluded.dt_update`,
		s.Key, s.Value, formatTime(s.UpdatedAt),
	)
	return err
}
