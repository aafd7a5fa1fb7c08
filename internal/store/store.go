// Package store implements the durable local cache backing the sync engine:
// a key-value table for cursors and session fields, and row tables for
// attractions and reviews. SQLite provides the per-record atomicity the
// engine relies on; no cross-record transactions are required outside the
// bulk review replace.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the local cache database.
type Store struct {
	db *sql.DB
}

// Open opens (creating when absent) the cache database at dataDir and runs
// the schema migration. modernc.org/sqlite is pure Go, so the client builds
// without CGO on every mobile-adjacent target.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return openDSN(filepath.Join(dataDir, "attractions.db"))
}

// OpenInMemory opens a private in-memory database. Each call gets its own
// namespace, so parallel tests never share state.
func OpenInMemory() (*Store, error) {
	return openDSN("file:" + uuid.NewString() + "?mode=memory&cache=shared")
}

func openDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attractions (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	latitude       REAL NOT NULL DEFAULT 0,
	longitude      REAL NOT NULL DEFAULT 0,
	image_urls     TEXT NOT NULL DEFAULT '[]',
	rating         REAL NOT NULL DEFAULT 0,
	updated_at     INTEGER NOT NULL DEFAULT 0,
	favorite       INTEGER NOT NULL DEFAULT 0,
	is_mine        INTEGER NOT NULL DEFAULT 0,
	user_reaction  TEXT NOT NULL DEFAULT '',
	last_synced_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_attractions_updated_at ON attractions(updated_at);

CREATE TABLE IF NOT EXISTS reviews (
	id             TEXT PRIMARY KEY,
	attraction_id  TEXT NOT NULL,
	author         TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL DEFAULT '',
	rating         INTEGER NOT NULL DEFAULT 0,
	approved       INTEGER NOT NULL DEFAULT 0,
	likes_count    INTEGER NOT NULL DEFAULT 0,
	dislikes_count INTEGER NOT NULL DEFAULT 0,
	updated_at     INTEGER NOT NULL DEFAULT 0,
	user_reaction  TEXT NOT NULL DEFAULT '',
	is_mine        INTEGER NOT NULL DEFAULT 0,
	last_synced_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reviews_attraction_id ON reviews(attraction_id);
CREATE INDEX IF NOT EXISTS idx_reviews_updated_at ON reviews(updated_at);

CREATE TABLE IF NOT EXISTS review_fetches (
	attraction_id TEXT PRIMARY KEY,
	fetched_at    INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run schema migration: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
