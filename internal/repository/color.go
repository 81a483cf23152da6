package repository

import (
	"context"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

type ColorRepository struct {
	db database.DBTX
}

func NewColorRepository(db database.DBTX) *ColorRepository {
	return &ColorRepository{db: db}
}

func (r *ColorRepository) Upsert(ctx context.Context, c *models.Color) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO colors (color_id, hex, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (color_id) DO UPDATE SET hex = excluded.hex, updated_at = excluded.updated_at`,
		c.ColorID, c.Hex, formatTime(c.UpdatedAt),
	)
	return err
}

func (r *ColorRepository) GetByID(ctx context.Context, colorID string) (*models.Color, error) {
	c := &models.Color{}
	var updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT color_id, hex, updated_at FROM colors WHERE color_id = ?`, colorID,
	).Scan(&c.ColorID, &c.Hex, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func (r *ColorRepository) List(ctx context.Context) ([]*models.Color, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT color_id, hex, updated_at FROM colors ORDER BY color_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var colors []*models.Color
	for rows.Next() {
		c := &models.Color{}
		var updated string
		if err := rows.Scan(&c.ColorID, &c.Hex, &updated); err != nil {
			return nil, err
		}
		c.UpdatedAt = parseTime(updated)
		colors = append(colors, c)
	}
	return colors, rows.Err()
}

func (r *ColorRepository) Delete(ctx context.Context, colorID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM colors WHERE color_id = ?`, colorID)
	return err
}

func (r *ColorRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM colors`)
	return err
}
