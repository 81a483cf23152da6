package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

// TriggerDefinitionRepository persists deferred trigger definitions in the
// manager store so they survive restarts.
type TriggerDefinitionRepository struct {
	db database.DBTX
}

func NewTriggerDefinitionRepository(db database.DBTX) *TriggerDefinitionRepository {
	return &TriggerDefinitionRepository{db: db}
}

func (r *TriggerDefinitionRepository) SaveDefinition(ctx context.Context, def models.TriggerDefinition) error {
	payload, err := json.Marshal(def.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode trigger payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO trigger_definitions (name, fire_at, every_seconds, payload, registered_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		   fire_at = excluded.fire_at, every_seconds = excluded.every_seconds,
		   payload = excluded.payload, registered_at = excluded.registered_at`,
		def.Name, formatTime(def.FireAt), int64(def.Every/time.Second), string(payload), formatTime(def.RegisteredAt),
	)
	return err
}

func (r *TriggerDefinitionRepository) DeleteDefinitions(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM trigger_definitions WHERE name IN (`+placeholders+`)`, args...)
	return err
}

func (r *TriggerDefinitionRepository) ListDefinitions(ctx context.Context) ([]models.TriggerDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, fire_at, every_seconds, payload, registered_at FROM trigger_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []models.TriggerDefinition
	for rows.Next() {
		var (
			def                         models.TriggerDefinition
			fireAt, payload, registered string
			every                       int64
		)
		if err := rows.Scan(&def.Name, &fireAt, &every, &payload, &registered); err != nil {
			return nil, err
		}
		// A payload that no longer decodes is dropped with its definition.
		if err := json.Unmarshal([]byte(payload), &def.Payload); err != nil {
			continue
		}
		def.FireAt = parseTime(fireAt)
		def.Every = time.Duration(every) * time.Second
		def.RegisteredAt = parseTime(registered)
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
