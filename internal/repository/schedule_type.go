package repository

import (
	"context"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

type ScheduleTypeRepository struct {
	db database.DBTX
}

func NewScheduleTypeRepository(db database.DBTX) *ScheduleTypeRepository {
	return &ScheduleTypeRepository{db: db}
}

func (r *ScheduleTypeRepository) Upsert(ctx context.Context, t *models.ScheduleType) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schedule_types (type_id, name, color_id, deleted, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (type_id) DO UPDATE SET
		   name = excluded.name, color_id = excluded.color_id,
		   deleted = excluded.deleted, updated_at = excluded.updated_at`,
		t.TypeID, t.Name, t.ColorID, t.Deleted, formatTime(t.UpdatedAt),
	)
	return err
}

func (r *ScheduleTypeRepository) GetByID(ctx context.Context, typeID string) (*models.ScheduleType, error) {
	t := &models.ScheduleType{}
	var updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT type_id, name, color_id, deleted, updated_at FROM schedule_types WHERE type_id = ?`,
		typeID,
	).Scan(&t.TypeID, &t.Name, &t.ColorID, &t.Deleted, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// List includes tombstones; callers filter on Deleted when needed.
func (r *ScheduleTypeRepository) List(ctx context.Context) ([]*models.ScheduleType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT type_id, name, color_id, deleted, updated_at FROM schedule_types ORDER BY type_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*models.ScheduleType
	for rows.Next() {
		t := &models.ScheduleType{}
		var updated string
		if err := rows.Scan(&t.TypeID, &t.Name, &t.ColorID, &t.Deleted, &updated); err != nil {
			return nil, err
		}
		t.UpdatedAt = parseTime(updated)
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *ScheduleTypeRepository) Delete(ctx context.Context, typeID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedule_types WHERE type_id = ?`, typeID)
	return err
}

func (r *ScheduleTypeRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedule_types`)
	return err
}
