package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/connectivity"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/remote"
)

// defaultStaleness is how recently a per-attraction review fetch must have
// happened for the cache to be served without touching the network.
const defaultStaleness = 5 * time.Minute

// ReviewCache is the slice of the local store the review syncer needs.
// Satisfied by *store.Store.
type ReviewCache interface {
	GetReview(ctx context.Context, id string) (models.Review, bool, error)
	UpsertReview(ctx context.Context, r models.Review) error
	DeleteReview(ctx context.Context, id string) (bool, error)
	CountReviews(ctx context.Context) (int, error)
	MaxReviewUpdatedAt(ctx context.Context) (time.Time, bool, error)
	MaxReviewUpdatedAtForAttraction(ctx context.Context, attractionID string) (time.Time, bool, error)
	ReplaceAllReviews(ctx context.Context, reviews []models.Review) error
	ReviewsFetchedAt(ctx context.Context, attractionID string) (time.Time, bool, error)
	TouchReviewsFetched(ctx context.Context, attractionID string, at time.Time) error
}

// ReviewSyncer keeps the review cache consistent with the backend using two
// strategies: a global bulk pass after each attraction sync, and an
// on-demand per-attraction delta pass when the UI opens a record.
//
// The bulk pass derives its cursor from MAX(updated_at) over the cached
// rows instead of a persisted value, which makes it self-correcting even
// when the persisted cursor store was lost.
type ReviewSyncer struct {
	api       remote.API
	cache     ReviewCache
	probe     connectivity.Probe
	staleness time.Duration
	now       func() time.Time
	logger    *slog.Logger

	// Per-attraction delta runs: concurrent calls for the same attraction
	// share one run; a call for a different attraction cancels every
	// in-flight run for the previous one. Each caller registers its own
	// cancelable context under a run token, so a caller joining just as
	// the previous run for the same parent unwinds still ends up
	// cancellable by a later parent switch.
	flight    singleflight.Group
	mu        sync.Mutex
	runs      map[int]*reviewRun
	nextRunID int
}

type reviewRun struct {
	parent string
	cancel context.CancelFunc
}

// ReviewSyncerOption configures a ReviewSyncer.
type ReviewSyncerOption func(*ReviewSyncer)

// WithStaleness overrides the per-attraction cache freshness window.
func WithStaleness(d time.Duration) ReviewSyncerOption {
	return func(s *ReviewSyncer) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithReviewClock overrides the time source. Used by tests.
func WithReviewClock(now func() time.Time) ReviewSyncerOption {
	return func(s *ReviewSyncer) {
		s.now = now
	}
}

// WithReviewLogger sets the logger.
func WithReviewLogger(logger *slog.Logger) ReviewSyncerOption {
	return func(s *ReviewSyncer) {
		s.logger = logger
	}
}

// NewReviewSyncer creates a ReviewSyncer.
func NewReviewSyncer(api remote.API, cache ReviewCache, probe connectivity.Probe, opts ...ReviewSyncerOption) *ReviewSyncer {
	s := &ReviewSyncer{
		api:       api,
		cache:     cache,
		probe:     probe,
		staleness: defaultStaleness,
		now:       time.Now,
		logger:    slog.Default(),
		runs:      make(map[int]*reviewRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BulkSync refreshes the global review cache. An empty cache is replaced
// wholesale from the full approved-review collection; a populated cache gets
// a delta pass from the newest cached updated_at.
func (s *ReviewSyncer) BulkSync(ctx context.Context) models.SyncResult {
	if !s.probe.Online(ctx) {
		return models.FailedResult(models.ErrorKindOffline)
	}

	count, err := s.cache.CountReviews(ctx)
	if err != nil {
		s.logger.Error("Failed to count cached reviews", "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	if count == 0 {
		return s.bulkReplace(ctx)
	}
	return s.bulkDelta(ctx)
}

// bulkReplace fetches the whole approved collection and swaps the cache in
// one transaction.
func (s *ReviewSyncer) bulkReplace(ctx context.Context) models.SyncResult {
	reviews, err := s.fetchReviewsSince(ctx, time.Time{})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.FailedResult(models.ErrorKindCancelled)
		}
		return models.FailedResult(remote.KindOf(err))
	}

	now := s.now()
	for i := range reviews {
		reviews[i].LastSyncedAt = now
	}
	if err := s.cache.ReplaceAllReviews(ctx, reviews); err != nil {
		s.logger.Error("Failed to replace review cache", "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	s.logger.Info("Review bulk sync completed", "mode", "replace", "added", len(reviews))
	return models.SyncResult{Success: true, Added: len(reviews)}
}

// bulkDelta fetches reviews changed after the newest cached row and merges
// them in, preserving the viewer's cached reaction and ownership flags.
func (s *ReviewSyncer) bulkDelta(ctx context.Context) models.SyncResult {
	since, _, err := s.cache.MaxReviewUpdatedAt(ctx)
	if err != nil {
		s.logger.Error("Failed to derive review cursor", "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	reviews, err := s.fetchReviewsSince(ctx, since)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.FailedResult(models.ErrorKindCancelled)
		}
		return models.FailedResult(remote.KindOf(err))
	}

	result, err := s.mergeReviews(ctx, reviews)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.FailedResult(models.ErrorKindCancelled)
		}
		s.logger.Error("Failed to merge reviews", "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	// Tombstones are best-effort for reviews, same as for attractions.
	tombstones, err := s.api.ListTombstonesSince(ctx, remote.CollectionReviews, since)
	if err != nil {
		s.logger.Warn("Review tombstone fetch failed, proceeding without deletions", "error", err)
	} else {
		for _, tombstone := range tombstones {
			removed, err := s.cache.DeleteReview(ctx, tombstone.ID)
			if err != nil {
				s.logger.Error("Failed to apply review tombstone", "id", tombstone.ID, "error", err)
				return models.FailedResult(models.ErrorKindStorage)
			}
			if removed {
				result.Deleted++
			}
		}
	}

	s.logger.Info("Review bulk sync completed",
		"mode", "delta",
		"added", result.Added,
		"updated", result.Updated,
		"deleted", result.Deleted)
	return result
}

// SyncForAttraction refreshes the reviews of a single attraction. A cache
// refreshed within the staleness window is served without network traffic.
// Calls for the same attraction coalesce into one run; a call for a new
// attraction cancels the previous in-flight run.
func (s *ReviewSyncer) SyncForAttraction(ctx context.Context, attractionID string) models.SyncResult {
	fetchedAt, fetched, err := s.cache.ReviewsFetchedAt(ctx, attractionID)
	if err != nil {
		s.logger.Error("Failed to read review fetch time", "attraction", attractionID, "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}
	if fetched && s.now().Sub(fetchedAt) < s.staleness {
		s.logger.Debug("Serving cached reviews", "attraction", attractionID)
		return models.SyncResult{Success: true}
	}

	if !s.probe.Online(ctx) {
		return models.FailedResult(models.ErrorKindOffline)
	}

	runCtx, runID := s.beginRun(ctx, attractionID)

	result, _, _ := s.flight.Do(attractionID, func() (any, error) {
		return s.deltaForAttraction(runCtx, attractionID), nil
	})
	s.endRun(runID)
	return result.(models.SyncResult)
}

// beginRun registers a cancelable run for attractionID and cancels every
// in-flight run for a different parent. Every caller gets its own
// registration; callers for the same parent still share one fetch through
// the flight group.
func (s *ReviewSyncer) beginRun(ctx context.Context, attractionID string) (context.Context, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.parent != attractionID {
			s.logger.Debug("Cancelling review sync for previous attraction",
				"previous", run.parent,
				"current", attractionID)
			run.cancel()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	id := s.nextRunID
	s.nextRunID++
	s.runs[id] = &reviewRun{parent: attractionID, cancel: cancel}
	return runCtx, id
}

func (s *ReviewSyncer) endRun(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.cancel()
		delete(s.runs, id)
	}
}

func (s *ReviewSyncer) deltaForAttraction(ctx context.Context, attractionID string) models.SyncResult {
	since, _, err := s.cache.MaxReviewUpdatedAtForAttraction(ctx, attractionID)
	if err != nil {
		s.logger.Error("Failed to derive per-attraction cursor", "attraction", attractionID, "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	reviews, err := s.api.ListReviewsForAttraction(ctx, attractionID, since)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.FailedResult(models.ErrorKindCancelled)
		}
		return models.FailedResult(remote.KindOf(err))
	}

	result, err := s.mergeReviews(ctx, reviews)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.FailedResult(models.ErrorKindCancelled)
		}
		s.logger.Error("Failed to merge reviews", "attraction", attractionID, "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	if err := s.cache.TouchReviewsFetched(ctx, attractionID, s.now()); err != nil {
		s.logger.Error("Failed to record review fetch", "attraction", attractionID, "error", err)
		return models.FailedResult(models.ErrorKindStorage)
	}

	s.logger.Info("Per-attraction review sync completed",
		"attraction", attractionID,
		"added", result.Added,
		"updated", result.Updated)
	return result
}

// mergeReviews applies fetched reviews one atomic upsert at a time,
// carrying local-only fields forward.
func (s *ReviewSyncer) mergeReviews(ctx context.Context, reviews []models.Review) (models.SyncResult, error) {
	result := models.SyncResult{Success: true}
	now := s.now()

	for _, review := range reviews {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		local, ok, err := s.cache.GetReview(ctx, review.ID)
		if err != nil {
			return result, err
		}
		if ok {
			review = local.MergeFrom(review)
		}
		review.LastSyncedAt = now

		if err := s.cache.UpsertReview(ctx, review); err != nil {
			return result, err
		}
		if ok {
			result.Updated++
		} else {
			result.Added++
		}
	}
	return result, nil
}

func (s *ReviewSyncer) fetchReviewsSince(ctx context.Context, since time.Time) ([]models.Review, error) {
	raws, err := s.api.ListSince(ctx, remote.CollectionReviews, since)
	if err != nil {
		return nil, err
	}

	reviews := make([]models.Review, 0, len(raws))
	for _, raw := range raws {
		review, err := remote.DecodeReview(raw)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}
