package syncer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/connectivity"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/remote"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/store"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/syncer"
)

// fakeAPI serves canned records and tracks the since values it was asked for.
type fakeAPI struct {
	mu sync.Mutex

	attractions    []models.Attraction
	reviews        []models.Review
	tombstones     map[string][]models.Tombstone
	parentReviews  map[string][]models.Review
	parentBlocks   map[string]chan struct{}
	listErr        error
	tombstoneErr   error
	parentErr      error
	listSinceCalls []time.Time
	parentCalls    []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tombstones:    make(map[string][]models.Tombstone),
		parentReviews: make(map[string][]models.Review),
		parentBlocks:  make(map[string]chan struct{}),
	}
}

func (f *fakeAPI) ListSince(_ context.Context, collection string, since time.Time) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listSinceCalls = append(f.listSinceCalls, since)
	if f.listErr != nil {
		return nil, f.listErr
	}

	var raws []json.RawMessage
	switch collection {
	case remote.CollectionAttractions:
		for _, a := range f.attractions {
			if !since.IsZero() && !a.UpdatedAt.After(since) {
				continue
			}
			raws = append(raws, mustMarshalAttraction(a))
		}
	case remote.CollectionReviews:
		for _, r := range f.reviews {
			if !since.IsZero() && !r.UpdatedAt.After(since) {
				continue
			}
			raws = append(raws, mustMarshalReview(r))
		}
	}
	return raws, nil
}

func (f *fakeAPI) ListTombstonesSince(_ context.Context, collection string, since time.Time) ([]models.Tombstone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tombstoneErr != nil {
		return nil, f.tombstoneErr
	}
	var out []models.Tombstone
	for _, t := range f.tombstones[collection] {
		if !since.IsZero() && !t.DeletedAt.After(since) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeAPI) ListReviewsForAttraction(ctx context.Context, attractionID string, since time.Time) ([]models.Review, error) {
	f.mu.Lock()
	f.parentCalls = append(f.parentCalls, attractionID)
	block := f.parentBlocks[attractionID]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.parentErr != nil {
		return nil, f.parentErr
	}
	var out []models.Review
	for _, r := range f.parentReviews[attractionID] {
		if !since.IsZero() && !r.UpdatedAt.After(since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeAPI) UpsertReaction(context.Context, string, models.ReactionKind) error {
	return nil
}

func (f *fakeAPI) DeleteReaction(context.Context, string) error {
	return nil
}

func (f *fakeAPI) RefreshToken(context.Context, string) (models.Session, error) {
	return models.Session{}, nil
}

func (f *fakeAPI) sinceCalls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.listSinceCalls...)
}

func mustMarshalAttraction(a models.Attraction) json.RawMessage {
	raw, err := json.Marshal(map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"category":   a.Category,
		"rating":     a.Rating,
		"updated_at": a.UpdatedAt,
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func mustMarshalReview(r models.Review) json.RawMessage {
	raw, err := json.Marshal(map[string]any{
		"id":             r.ID,
		"attraction_id":  r.AttractionID,
		"author":         r.Author,
		"rating":         r.Rating,
		"approved":       r.Approved,
		"likes_count":    r.LikesCount,
		"dislikes_count": r.DislikesCount,
		"updated_at":     r.UpdatedAt,
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func newEngineStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func attractionAt(id string, updatedAt time.Time) models.Attraction {
	return models.Attraction{
		ID:        id,
		Name:      "Attraction " + id,
		Category:  "nature",
		Rating:    4.5,
		UpdatedAt: updatedAt,
	}
}

func TestEngineSync_FirstRunFetchesEverything(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	for i := 0; i < 10; i++ {
		api.attractions = append(api.attractions,
			attractionAt(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	st := newEngineStore(t)
	syncStart := base.Add(time.Hour)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
		syncer.WithEngineClock[models.Attraction](func() time.Time { return syncStart }),
	)

	result := engine.Sync(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 10, result.Added)
	assert.Zero(t, result.Updated)
	assert.Zero(t, result.Deleted)

	count, err := st.CountAttractions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// The cursor landed on the pre-fetch capture point.
	cursor, ok, err := st.GetCursor(context.Background(), remote.CollectionAttractions)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, syncStart.Equal(cursor))

	// The fetch was a full one.
	calls := api.sinceCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].IsZero())
}

func TestEngineSync_SecondRunIsIncremental(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.attractions = []models.Attraction{attractionAt("a1", base)}

	st := newEngineStore(t)
	now := base.Add(time.Hour)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
		syncer.WithEngineClock[models.Attraction](func() time.Time { return now }),
	)

	first := engine.Sync(context.Background())
	require.True(t, first.Success)
	require.Equal(t, 1, first.Added)

	// Nothing changed on the server; the second pass applies nothing.
	second := engine.Sync(context.Background())
	require.True(t, second.Success)
	assert.Zero(t, second.Added)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.Deleted)

	calls := api.sinceCalls()
	require.Len(t, calls, 2)
	assert.True(t, now.Equal(calls[1]), "second fetch starts from the stored cursor")
}

func TestEngineSync_PreservesLocalFieldsOnUpdate(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.attractions = []models.Attraction{attractionAt("a1", base)}

	st := newEngineStore(t)
	now := base.Add(time.Hour)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
		syncer.WithEngineClock[models.Attraction](func() time.Time { return now }),
	)

	require.True(t, engine.Sync(context.Background()).Success)
	require.NoError(t, st.SetFavorite(context.Background(), "a1", true))

	// The server updates the record; the local favorite flag must survive.
	api.mu.Lock()
	api.attractions[0].Name = "Renamed"
	api.attractions[0].UpdatedAt = now.Add(time.Minute)
	api.mu.Unlock()
	now = now.Add(2 * time.Minute)

	result := engine.Sync(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Updated)

	got, ok, err := st.GetAttraction(context.Background(), "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.Favorite, "local-only field must be carried forward")
}

func TestEngineSync_AppliesTombstones(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.attractions = []models.Attraction{attractionAt("a1", base), attractionAt("a2", base)}

	st := newEngineStore(t)
	now := base.Add(time.Hour)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
		syncer.WithEngineClock[models.Attraction](func() time.Time { return now }),
	)

	require.True(t, engine.Sync(context.Background()).Success)

	// a2 is deleted server-side after the first pass.
	api.mu.Lock()
	api.attractions = api.attractions[:1]
	api.tombstones[remote.CollectionAttractions] = []models.Tombstone{
		{ID: "a2", DeletedAt: now.Add(time.Minute)},
	}
	api.mu.Unlock()
	now = now.Add(2 * time.Minute)

	result := engine.Sync(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Deleted)

	_, ok, err := st.GetAttraction(context.Background(), "a2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineSync_IgnoresReplayedTombstones(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.attractions = []models.Attraction{attractionAt("a1", base)}

	st := newEngineStore(t)
	now := base.Add(time.Hour)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
		syncer.WithEngineClock[models.Attraction](func() time.Time { return now }),
	)

	require.True(t, engine.Sync(context.Background()).Success)

	// A tombstone from before the cursor targets a record that was since
	// recreated under the same id; it must not delete the new record.
	api.mu.Lock()
	api.tombstones[remote.CollectionAttractions] = []models.Tombstone{
		{ID: "a1", DeletedAt: base.Add(30 * time.Minute)},
	}
	api.mu.Unlock()
	now = now.Add(time.Minute)

	result := engine.Sync(context.Background())
	require.True(t, result.Success)
	assert.Zero(t, result.Deleted)

	_, ok, err := st.GetAttraction(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngineSync_TombstoneFetchFailureIsTolerated(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.attractions = []models.Attraction{attractionAt("a1", base)}
	api.tombstoneErr = remote.NewHTTPError(500, "http://api/tombstones", "boom")

	st := newEngineStore(t)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
	)

	result := engine.Sync(context.Background())

	require.True(t, result.Success, "a failed tombstone fetch must not fail the sync")
	assert.Equal(t, 1, result.Added)
}

func TestEngineSync_Offline(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	st := newEngineStore(t)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: false},
	)

	result := engine.Sync(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindOffline, result.Err)
	assert.Empty(t, api.sinceCalls(), "no network traffic while offline")
}

func TestEngineSync_FetchFailureLeavesCursorUntouched(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.listErr = remote.NewError(models.ErrorKindServerUnavailable,
		remote.NewHTTPError(503, "http://api/attractions", "overloaded"))

	st := newEngineStore(t)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
	)

	result := engine.Sync(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindServerUnavailable, result.Err)

	_, ok, err := st.GetCursor(context.Background(), remote.CollectionAttractions)
	require.NoError(t, err)
	assert.False(t, ok, "a failed run must not advance the cursor")
}

func TestEngineSync_CancelledFetchReportsCancelled(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.listErr = context.Canceled

	st := newEngineStore(t)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
	)

	result := engine.Sync(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindCancelled, result.Err)

	_, ok, err := st.GetCursor(context.Background(), remote.CollectionAttractions)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineSync_WithoutTombstones(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.attractions = []models.Attraction{attractionAt("a1", base)}
	api.tombstoneErr = remote.NewHTTPError(500, "http://api/tombstones", "must not be called")

	st := newEngineStore(t)
	engine := syncer.NewEngine(
		syncer.NewAttractionCollection(api, st),
		st,
		&connectivity.StaticProbe{IsOnline: true},
		syncer.WithTombstones[models.Attraction](false),
	)

	result := engine.Sync(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Added)
}
