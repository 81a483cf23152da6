package repository

import (
	"context"
	"time"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

// UploadTaskRepository is the append-only queue of local changes.
type UploadTaskRepository struct {
	db database.DBTX
}

func NewUploadTaskRepository(db database.DBTX) *UploadTaskRepository {
	return &UploadTaskRepository{db: db}
}

func (r *UploadTaskRepository) Append(ctx context.Context, kind models.TaskKind, target models.TaskTarget, targetID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO upload_tasks (kind, target, target_id, created_at) VALUES (?, ?, ?, ?)`,
		int(kind), int(target), targetID, formatTime(time.Now()),
	)
	return err
}

// List returns queued tasks in insertion order.
func (r *UploadTaskRepository) List(ctx context.Context) ([]*models.UploadTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT task_id, kind, target, target_id, created_at FROM upload_tasks ORDER BY task_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.UploadTask
	for rows.Next() {
		t := &models.UploadTask{}
		var kind, target int
		var created string
		if err := rows.Scan(&t.TaskID, &kind, &target, &t.TargetID, &created); err != nil {
			return nil, err
		}
		t.Kind = models.TaskKind(kind)
		t.Target = models.TaskTarget(target)
		t.CreatedAt = parseTime(created)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *UploadTaskRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_tasks`).Scan(&n)
	return n, err
}

func (r *UploadTaskRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM upload_tasks`)
	return err
}
