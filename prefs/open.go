// Package prefs persists sidebar preferences and per-domain enablement
// rules in SQLite.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	store, err := prefs.Open("gentoc.db")
//
// In tests:
//
//	store := prefs.OpenMemory(t)
package prefs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS domain_rules (
	domain     TEXT PRIMARY KEY,
	allowed    INTEGER NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Open opens (creating if needed) the preferences database at path with
// WAL and the usual production pragmas. Parent directories are created.
// The caller must blank-import an sqlite driver ("modernc.org/sqlite").
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("prefs: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("prefs: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns(1) keeps
// every query on the same in-memory database; Close is registered with
// t.Cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("prefs.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}
