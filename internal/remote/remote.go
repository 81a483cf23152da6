// Package remote stores whole-account snapshot files outside the machine.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNoData means the account has never been uploaded.
	ErrNoData = errors.New("remote: no data yet")
	// ErrStorageFull means the backend refused the upload for lack of space.
	ErrStorageFull = errors.New("remote: storage full")
)

// Store moves snapshot files. Download writes the snapshot into a new file
// under dir and returns its path; the caller removes it.
type Store interface {
	Download(ctx context.Context, accountID, dir string) (string, error)
	Upload(ctx context.Context, accountID, path string) error
}

// writeTemp copies r into a fresh temporary file under dir.
func writeTemp(dir string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "snapshot-*.db")
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
