package reaction_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/reaction"
)

type fakeSessions struct {
	signedIn bool
}

func (f *fakeSessions) Current() (models.Session, bool) {
	if !f.signedIn {
		return models.Session{}, false
	}
	return models.Session{AccessToken: "at", RefreshToken: "rt"}, true
}

type fakeCache struct {
	mu      sync.Mutex
	reviews map[string]models.Review
	setErr  error
}

func newFakeCache(reviews ...models.Review) *fakeCache {
	c := &fakeCache{reviews: make(map[string]models.Review)}
	for _, r := range reviews {
		c.reviews[r.ID] = r
	}
	return c
}

func (c *fakeCache) GetReview(_ context.Context, id string) (models.Review, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reviews[id]
	return r, ok, nil
}

func (c *fakeCache) SetReviewReaction(_ context.Context, id string, kind models.ReactionKind, likes, dislikes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	r := c.reviews[id]
	r.UserReaction = kind
	r.LikesCount = likes
	r.DislikesCount = dislikes
	c.reviews[id] = r
	return nil
}

func (c *fakeCache) review(t *testing.T, id string) models.Review {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reviews[id]
	require.True(t, ok)
	return r
}

type fakeSubmitter struct {
	mu         sync.Mutex
	upserts    []models.ReactionKind
	deletes    int
	failNext   bool
	failAlways bool
}

func (s *fakeSubmitter) UpsertReaction(_ context.Context, _ string, kind models.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, kind)
	if s.failAlways || s.failNext {
		s.failNext = false
		return errors.New("server unavailable")
	}
	return nil
}

func (s *fakeSubmitter) DeleteReaction(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failAlways {
		return errors.New("server unavailable")
	}
	return nil
}

func (s *fakeSubmitter) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func TestReact_RequiresSession(t *testing.T) {
	t.Parallel()

	cache := newFakeCache(models.Review{ID: "r1", LikesCount: 2})
	api := &fakeSubmitter{}
	r := reaction.NewReconciler(&fakeSessions{signedIn: false}, cache, api)

	err := r.React(context.Background(), "r1", models.ReactionLike)

	require.ErrorIs(t, err, reaction.ErrAuthRequired)
	r.Wait()

	// Nothing was touched, locally or remotely.
	assert.Equal(t, 2, cache.review(t, "r1").LikesCount)
	assert.Equal(t, models.ReactionNone, cache.review(t, "r1").UserReaction)
	assert.Zero(t, api.upsertCount())
}

func TestReact_RejectsInvalidKind(t *testing.T) {
	t.Parallel()

	cache := newFakeCache(models.Review{ID: "r1"})
	r := reaction.NewReconciler(&fakeSessions{signedIn: true}, cache, &fakeSubmitter{})

	err := r.React(context.Background(), "r1", models.ReactionNone)
	require.Error(t, err)

	err = r.React(context.Background(), "r1", models.ReactionKind("meh"))
	require.Error(t, err)
}

func TestReact_UnknownReview(t *testing.T) {
	t.Parallel()

	r := reaction.NewReconciler(&fakeSessions{signedIn: true}, newFakeCache(), &fakeSubmitter{})

	err := r.React(context.Background(), "missing", models.ReactionLike)

	require.ErrorIs(t, err, reaction.ErrUnknownReview)
}

func TestReact_AppliesOptimisticallyAndConfirms(t *testing.T) {
	t.Parallel()

	cache := newFakeCache(models.Review{ID: "r1", LikesCount: 3, DislikesCount: 1})
	api := &fakeSubmitter{}
	r := reaction.NewReconciler(&fakeSessions{signedIn: true}, cache, api)

	require.NoError(t, r.React(context.Background(), "r1", models.ReactionLike))

	// The local cache reflects the toggle before the backend confirms.
	got := cache.review(t, "r1")
	assert.Equal(t, models.ReactionLike, got.UserReaction)
	assert.Equal(t, 4, got.LikesCount)
	assert.Equal(t, 1, got.DislikesCount)

	r.Wait()
	assert.Equal(t, 1, api.upsertCount())
}

func TestReact_DoubleTapSubmitsDelete(t *testing.T) {
	t.Parallel()

	cache := newFakeCache(models.Review{ID: "r1", LikesCount: 3, UserReaction: models.ReactionLike})
	api := &fakeSubmitter{}
	r := reaction.NewReconciler(&fakeSessions{signedIn: true}, cache, api)

	require.NoError(t, r.React(context.Background(), "r1", models.ReactionLike))
	r.Wait()

	got := cache.review(t, "r1")
	assert.Equal(t, models.ReactionNone, got.UserReaction)
	assert.Equal(t, 2, got.LikesCount)

	api.mu.Lock()
	deletes := api.deletes
	api.mu.Unlock()
	assert.Equal(t, 1, deletes)
}

func TestReact_NoRollbackByDefault(t *testing.T) {
	t.Parallel()

	cache := newFakeCache(models.Review{ID: "r1", LikesCount: 3})
	api := &fakeSubmitter{failAlways: true}
	r := reaction.NewReconciler(&fakeSessions{signedIn: true}, cache, api)

	require.NoError(t, r.React(context.Background(), "r1", models.ReactionLike))
	r.Wait()

	// The optimistic state stays in place even though submission failed.
	got := cache.review(t, "r1")
	assert.Equal(t, models.ReactionLike, got.UserReaction)
	assert.Equal(t, 4, got.LikesCount)
}

func TestReact_RollbackWhenEnabled(t *testing.T) {
	t.Parallel()

	cache := newFakeCache(models.Review{ID: "r1", LikesCount: 3, DislikesCount: 1})
	api := &fakeSubmitter{failAlways: true}
	r := reaction.NewReconciler(&fakeSessions{signedIn: true}, cache, api,
		reaction.WithRollbackOnFailure(true))

	require.NoError(t, r.React(context.Background(), "r1", models.ReactionLike))
	r.Wait()

	got := cache.review(t, "r1")
	assert.Equal(t, models.ReactionNone, got.UserReaction)
	assert.Equal(t, 3, got.LikesCount)
	assert.Equal(t, 1, got.DislikesCount)
}
