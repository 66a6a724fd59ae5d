// Package photostore keeps attendance photos on disk until the server
// confirms receipt, at which point they are reclaimed.
package photostore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Store writes photo blobs under a single directory.
type Store struct {
	dir string
}

// New ensures the photo directory exists and returns the store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save persists the photo durably before any network attempt and returns its path.
func (s *Store) Save(ts time.Time, data []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("attendance_photo_%d.jpg", ts.UnixMilli()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return path, nil
}

// Read loads a stored photo; errors are surfaced so the caller can fall
// back to an empty placeholder part.
func (s *Store) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Delete reclaims a photo after server receipt. Missing files are fine;
// a retried reconciliation may have removed it already.
func (s *Store) Delete(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
