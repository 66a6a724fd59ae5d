// Package sqlite contains SQLite implementations of the on-device repositories.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB used by the on-device repositories.
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	token       TEXT    NOT NULL UNIQUE,
	ts          INTEGER NOT NULL,
	latitude    REAL    NOT NULL,
	longitude   REAL    NOT NULL,
	note        TEXT    NOT NULL DEFAULT '',
	kind        TEXT    NOT NULL,
	device      TEXT    NOT NULL DEFAULT '',
	battery     INTEGER NOT NULL DEFAULT 0,
	signal      INTEGER NOT NULL DEFAULT 0,
	network     TEXT    NOT NULL DEFAULT 'SIN_CONEXION',
	online      INTEGER NOT NULL DEFAULT 0,
	photo_path  TEXT    NOT NULL DEFAULT '',
	synced      INTEGER NOT NULL DEFAULT 0,
	address     TEXT    NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	server_id   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_attendance_ts ON attendance(ts);
CREATE INDEX IF NOT EXISTS idx_attendance_unsynced ON attendance(synced) WHERE synced = 0;

CREATE TABLE IF NOT EXISTS location_cache (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	latitude  REAL    NOT NULL,
	longitude REAL    NOT NULL,
	accuracy  REAL    NOT NULL,
	ts        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_location_ts ON location_cache(ts);
`

// Open opens (creating if needed) the agent database under dataDir.
// WAL mode is enabled so background reconciliation can read while the
// foreground pipeline writes.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return open(filepath.Join(dataDir, "marcaje.db"))
}

// OpenInMemory opens a throwaway database, used by tests.
func OpenInMemory() (*DB, error) {
	return open(":memory:")
}

func open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.DB.Close() }
