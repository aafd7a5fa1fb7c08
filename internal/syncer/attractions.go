package syncer

import (
	"context"
	"time"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/remote"
)

// AttractionCache is the slice of the local store the attraction collection
// needs. Satisfied by *store.Store.
type AttractionCache interface {
	GetAttraction(ctx context.Context, id string) (models.Attraction, bool, error)
	UpsertAttraction(ctx context.Context, a models.Attraction) error
	DeleteAttraction(ctx context.Context, id string) (bool, error)
}

// attractionCollection adapts the attraction endpoints and cache tables to
// the generic delta engine.
type attractionCollection struct {
	api   remote.API
	cache AttractionCache
	now   func() time.Time
}

// NewAttractionCollection binds the attractions collection for the delta
// engine.
func NewAttractionCollection(api remote.API, cache AttractionCache) Collection[models.Attraction] {
	return &attractionCollection{
		api:   api,
		cache: cache,
		now:   time.Now,
	}
}

func (*attractionCollection) Name() string {
	return remote.CollectionAttractions
}

func (c *attractionCollection) FetchSince(ctx context.Context, since time.Time) ([]models.Attraction, error) {
	raws, err := c.api.ListSince(ctx, remote.CollectionAttractions, since)
	if err != nil {
		return nil, err
	}

	attractions := make([]models.Attraction, 0, len(raws))
	for _, raw := range raws {
		attraction, err := remote.DecodeAttraction(raw)
		if err != nil {
			return nil, err
		}
		attractions = append(attractions, attraction)
	}
	return attractions, nil
}

func (c *attractionCollection) FetchTombstonesSince(ctx context.Context, since time.Time) ([]models.Tombstone, error) {
	return c.api.ListTombstonesSince(ctx, remote.CollectionAttractions, since)
}

func (*attractionCollection) ID(record models.Attraction) string {
	return record.ID
}

func (c *attractionCollection) Lookup(ctx context.Context, id string) (models.Attraction, bool, error) {
	return c.cache.GetAttraction(ctx, id)
}

func (c *attractionCollection) Store(ctx context.Context, record models.Attraction) error {
	record.LastSyncedAt = c.now()
	return c.cache.UpsertAttraction(ctx, record)
}

func (c *attractionCollection) Remove(ctx context.Context, id string) (bool, error) {
	return c.cache.DeleteAttraction(ctx, id)
}

func (*attractionCollection) Merge(local, remote models.Attraction) models.Attraction {
	return local.MergeFrom(remote)
}
