// Package repository holds the sqlite-backed row stores. Every repository
// works on a database.DBTX so the same code runs inside or outside a
// transaction.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/hray3182/calendard/internal/models"
)

var ErrNotFound = models.ErrNotFound

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// parseTime returns the zero time for empty or malformed values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func encodeTimes(ts []time.Time) string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, formatTime(t))
	}
	data, _ := json.Marshal(out)
	return string(data)
}

// decodeTimes drops entries that fail to parse.
func decodeTimes(s string) []time.Time {
	var raw []string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}
	var out []time.Time
	for _, r := range raw {
		if t := parseTime(r); !t.IsZero() {
			out = append(out, t)
		}
	}
	return out
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
