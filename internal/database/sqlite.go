package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Schema selects the migration set applied to a sqlite store.
type Schema string

const (
	SchemaAccount  Schema = "migrations/account"
	SchemaManager  Schema = "migrations/manager"
	SchemaSnapshot Schema = "migrations/snapshot"
)

// OpenSQLite opens the sqlite file at path (":memory:" for tests) and brings
// its schema up to date. The pool is capped at one connection so that an
// open transaction serializes every other access to the same store.
func OpenSQLite(ctx context.Context, path string, schema Schema) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite %s: %w", path, err)
	}

	if err := RunMigrations(ctx, db, schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations of schema to db.
func RunMigrations(ctx context.Context, db *sql.DB, schema Schema) error {
	fsys, err := fs.Sub(migrationsFS, string(schema))
	if err != nil {
		return fmt.Errorf("failed to read migrations %s: %w", schema, err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations %s: %w", schema, err)
	}
	return nil
}
