package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

// submitTimeout bounds one background confirmation attempt.
const submitTimeout = 45 * time.Second

// ErrAuthRequired means the caller tried to react without a session. No
// local state is mutated in that case.
var ErrAuthRequired = errors.New("authentication required")

// ErrUnknownReview means the review is not in the local cache.
var ErrUnknownReview = errors.New("review not cached")

// SessionChecker reports whether a user is signed in. Satisfied by the
// session manager.
type SessionChecker interface {
	Current() (models.Session, bool)
}

// Cache is the slice of the local store the reconciler needs. Satisfied by
// *store.Store.
type Cache interface {
	GetReview(ctx context.Context, id string) (models.Review, bool, error)
	SetReviewReaction(ctx context.Context, id string, kind models.ReactionKind, likes, dislikes int) error
}

// Submitter pushes the confirmed reaction to the backend. Satisfied by the
// remote client.
type Submitter interface {
	UpsertReaction(ctx context.Context, reviewID string, kind models.ReactionKind) error
	DeleteReaction(ctx context.Context, reviewID string) error
}

// Reconciler applies reaction toggles optimistically and confirms them in
// the background. Submission failures are not rolled back: responsiveness
// wins over strict consistency, and the next review sync reconciles the
// counters from the server's authoritative aggregate. The policy is held in
// a flag so the tradeoff stays visible and revisitable.
type Reconciler struct {
	sessions          SessionChecker
	cache             Cache
	api               Submitter
	rollbackOnFailure bool
	logger            *slog.Logger

	// Per-review submission state: one in-flight confirmation at a time,
	// rapid toggles collapse into the latest target.
	mu      sync.Mutex
	pending map[string]*pendingSubmit

	wg sync.WaitGroup
}

type pendingSubmit struct {
	target  models.ReactionKind
	dirty   bool
	running bool
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithRollbackOnFailure enables restoring the previous local state when the
// background submission fails. Off by default.
func WithRollbackOnFailure(enabled bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.rollbackOnFailure = enabled
	}
}

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(sessions SessionChecker, cache Cache, api Submitter, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		sessions: sessions,
		cache:    cache,
		api:      api,
		logger:   slog.Default(),
		pending:  make(map[string]*pendingSubmit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// React toggles the caller's reaction on a review. The local cache is
// updated synchronously before returning; the backend confirmation runs in
// the background and never blocks the caller.
func (r *Reconciler) React(ctx context.Context, reviewID string, desired models.ReactionKind) error {
	if desired != models.ReactionLike && desired != models.ReactionDislike {
		return fmt.Errorf("invalid desired reaction %q", desired)
	}
	if _, ok := r.sessions.Current(); !ok {
		return ErrAuthRequired
	}

	review, ok, err := r.cache.GetReview(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("failed to load review: %w", err)
	}
	if !ok {
		return ErrUnknownReview
	}

	next, likes, dislikes := Toggle(review.UserReaction, desired, review.LikesCount, review.DislikesCount)
	if err := r.cache.SetReviewReaction(ctx, reviewID, next, likes, dislikes); err != nil {
		return fmt.Errorf("failed to apply reaction locally: %w", err)
	}

	r.enqueue(reviewID, next, review)
	return nil
}

// Wait blocks until all in-flight background submissions have finished.
// Used by tests and by graceful shutdown.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// enqueue records the latest confirmed-to-be target state for the review
// and starts a submitter goroutine unless one is already draining it.
func (r *Reconciler) enqueue(reviewID string, target models.ReactionKind, previous models.Review) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[reviewID]
	if !ok {
		p = &pendingSubmit{}
		r.pending[reviewID] = p
	}
	p.target = target
	p.dirty = true

	if p.running {
		return
	}
	p.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.drain(reviewID, previous)
	}()
}

// drain submits until the latest target has been pushed. Each pass submits
// one snapshot; toggles arriving mid-flight mark the entry dirty again.
func (r *Reconciler) drain(reviewID string, previous models.Review) {
	for {
		r.mu.Lock()
		p := r.pending[reviewID]
		if p == nil || !p.dirty {
			if p != nil {
				p.running = false
			}
			delete(r.pending, reviewID)
			r.mu.Unlock()
			return
		}
		target := p.target
		p.dirty = false
		r.mu.Unlock()

		r.submit(reviewID, target, previous)
	}
}

func (r *Reconciler) submit(reviewID string, target models.ReactionKind, previous models.Review) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	var err error
	if target == models.ReactionNone {
		err = r.api.DeleteReaction(ctx, reviewID)
	} else {
		err = r.api.UpsertReaction(ctx, reviewID, target)
	}
	if err == nil {
		r.logger.Debug("Reaction confirmed", "review", reviewID, "reaction", string(target))
		return
	}

	r.logger.Warn("Reaction submission failed",
		"review", reviewID,
		"reaction", string(target),
		"rollback", r.rollbackOnFailure,
		"error", err)

	if !r.rollbackOnFailure {
		return
	}
	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), submitTimeout)
	defer restoreCancel()
	if err := r.cache.SetReviewReaction(restoreCtx, reviewID,
		previous.UserReaction, previous.LikesCount, previous.DislikesCount); err != nil {
		r.logger.Error("Failed to roll back reaction", "review", reviewID, "error", err)
	}
}
