package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/connectivity"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/remote"
)

// defaultChunkSize bounds how many fetched records are applied per batch.
// Purely a resource-usage bound; correctness does not depend on it.
const defaultChunkSize = 50

// Collection binds the delta engine to one record type: how to fetch changes
// and deletions, how to look up and write cached rows, and how to merge a
// remote record onto a cached one without losing local-only fields.
type Collection[T any] interface {
	// Name identifies the collection; it also keys the persisted cursor.
	Name() string

	// FetchSince returns records changed after since; a zero since means
	// the full collection.
	FetchSince(ctx context.Context, since time.Time) ([]T, error)

	// FetchTombstonesSince returns deletions after since.
	FetchTombstonesSince(ctx context.Context, since time.Time) ([]models.Tombstone, error)

	// ID returns the stable identifier of a record.
	ID(record T) string

	// Lookup reads the cached row; ok is false when absent.
	Lookup(ctx context.Context, id string) (T, bool, error)

	// Store writes the row as a single atomic replace.
	Store(ctx context.Context, record T) error

	// Remove deletes the row; absent ids are a no-op. Reports whether a
	// row was actually removed.
	Remove(ctx context.Context, id string) (bool, error)

	// Merge carries the local-only fields of local forward onto remote.
	Merge(local, remote T) T
}

// CursorStore persists per-collection sync cursors. Implemented by the
// local store's KV table.
type CursorStore interface {
	GetCursor(ctx context.Context, collection string) (time.Time, bool, error)
	SetCursor(ctx context.Context, collection string, cursor time.Time) error
}

// Engine is the generic delta sync engine: fetch changes since the cursor,
// merge them into the cache, consume tombstones, advance the cursor.
type Engine[T any] struct {
	collection Collection[T]
	cursors    CursorStore
	probe      connectivity.Probe
	chunkSize  int
	tombstones bool
	now        func() time.Time
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption[T any] func(*Engine[T])

// WithChunkSize overrides the batch size used when applying fetched records.
func WithChunkSize[T any](size int) EngineOption[T] {
	return func(e *Engine[T]) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// WithTombstones toggles tombstone consumption. Enabled by default; the
// switch exists only to reproduce deployments that cannot afford the extra
// round trip on high-latency links.
func WithTombstones[T any](enabled bool) EngineOption[T] {
	return func(e *Engine[T]) {
		e.tombstones = enabled
	}
}

// WithEngineClock overrides the time source. Used by tests.
func WithEngineClock[T any](now func() time.Time) EngineOption[T] {
	return func(e *Engine[T]) {
		e.now = now
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger[T any](logger *slog.Logger) EngineOption[T] {
	return func(e *Engine[T]) {
		e.logger = logger
	}
}

// NewEngine creates a delta engine for one collection.
func NewEngine[T any](
	collection Collection[T],
	cursors CursorStore,
	probe connectivity.Probe,
	opts ...EngineOption[T],
) *Engine[T] {
	e := &Engine[T]{
		collection: collection,
		cursors:    cursors,
		probe:      probe,
		chunkSize:  defaultChunkSize,
		tombstones: true,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync runs one delta pass. The cursor is advanced only when every step
// completed without a fatal error, so a failed run re-fetches the same
// window on the next attempt.
func (e *Engine[T]) Sync(ctx context.Context) models.SyncResult {
	name := e.collection.Name()

	if !e.probe.Online(ctx) {
		e.logger.Debug("Skipping sync, offline", "collection", name)
		return models.FailedResult(models.ErrorKindOffline)
	}

	cursor, hasCursor, err := e.cursors.GetCursor(ctx, name)
	if err != nil {
		e.logger.Error("Failed to read sync cursor", "collection", name, "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	// The new cursor position is captured before fetching so records that
	// change mid-sync fall into the next window instead of being skipped.
	syncStart := e.now()

	records, err := e.collection.FetchSince(ctx, cursor)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.FailedResult(models.ErrorKindCancelled)
		}
		return models.FailedResult(remote.KindOf(err))
	}

	var tombstones []models.Tombstone
	if e.tombstones {
		tombstones, err = e.collection.FetchTombstonesSince(ctx, cursor)
		if err != nil {
			// A failed tombstone fetch must not fail the whole sync; the
			// next pass re-fetches the same window.
			e.logger.Warn("Tombstone fetch failed, proceeding without deletions",
				"collection", name,
				"error", err)
			tombstones = nil
		}
	}

	result := models.SyncResult{Success: true}

	for start := 0; start < len(records); start += e.chunkSize {
		end := min(start+e.chunkSize, len(records))
		added, updated, err := e.applyChunk(ctx, records[start:end])
		result.Added += added
		result.Updated += updated
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return models.FailedResult(models.ErrorKindCancelled)
			}
			e.logger.Error("Failed to apply fetched records",
				"collection", name,
				"error", err)
			return models.FailedResult(models.ErrorKindStorage)
		}
	}

	for _, tombstone := range tombstones {
		// Replayed tombstones from before the cursor are a no-op.
		if hasCursor && !tombstone.DeletedAt.After(cursor) {
			continue
		}
		removed, err := e.collection.Remove(ctx, tombstone.ID)
		if err != nil {
			e.logger.Error("Failed to apply tombstone",
				"collection", name,
				"id", tombstone.ID,
				"error", err)
			return models.FailedResult(models.ErrorKindStorage)
		}
		if removed {
			result.Deleted++
		}
	}

	if err := e.cursors.SetCursor(ctx, name, syncStart); err != nil {
		e.logger.Error("Failed to advance sync cursor", "collection", name, "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	e.logger.Info("Sync completed",
		"collection", name,
		"added", result.Added,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"full_sync", !hasCursor)
	return result
}

// applyChunk merges one batch of fetched records into the cache.
func (e *Engine[T]) applyChunk(ctx context.Context, records []T) (added, updated int, err error) {
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return added, updated, err
		}

		id := e.collection.ID(record)
		local, ok, err := e.collection.Lookup(ctx, id)
		if err != nil {
			return added, updated, err
		}

		if ok {
			record = e.collection.Merge(local, record)
		}
		if err := e.collection.Store(ctx, record); err != nil {
			return added, updated, err
		}

		if ok {
			updated++
		} else {
			added++
		}
	}
	return added, updated, nil
}
