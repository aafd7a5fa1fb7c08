package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Key prefixes used by the engine.
const (
	cursorKeyPrefix = "cursor:"
	sessionKey      = "session"
)

// GetValue returns the value stored under key. The second return value is
// false when the key is absent.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read kv %q: %w", key, err)
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value atomically.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write kv %q: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. Deleting an absent key is a no-op.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete kv %q: %w", key, err)
	}
	return nil
}

// GetCursor returns the persisted sync cursor for collection. An absent
// cursor means the beginning of time and reads as (zero, false).
func (s *Store) GetCursor(ctx context.Context, collection string) (time.Time, bool, error) {
	value, ok, err := s.GetValue(ctx, cursorKeyPrefix+collection)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	cursor, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt cursor for %q: %w", collection, err)
	}
	return cursor, true, nil
}

// SetCursor advances the sync cursor for collection. Callers must only do
// this after a fetch+merge pass completed without a fatal error.
func (s *Store) SetCursor(ctx context.Context, collection string, cursor time.Time) error {
	return s.SetValue(ctx, cursorKeyPrefix+collection, cursor.UTC().Format(time.RFC3339Nano))
}

// DeleteCursor drops the cursor for collection, forcing the next sync to run
// from the beginning of time.
func (s *Store) DeleteCursor(ctx context.Context, collection string) error {
	return s.DeleteValue(ctx, cursorKeyPrefix+collection)
}
