package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

const attractionColumns = `id, name, description, category, latitude, longitude,
	image_urls, rating, updated_at, favorite, is_mine, user_reaction, last_synced_at`

// GetAttraction returns the cached attraction with the given id.
func (s *Store) GetAttraction(ctx context.Context, id string) (models.Attraction, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attractionColumns+` FROM attractions WHERE id = ?`, id)
	attraction, err := scanAttraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Attraction{}, false, nil
	}
	if err != nil {
		return models.Attraction{}, false, fmt.Errorf("failed to read attraction %q: %w", id, err)
	}
	return attraction, true, nil
}

// UpsertAttraction writes the full row in a single atomic replace. Merging
// local-only fields forward is the caller's responsibility; the store never
// mixes old and new field values.
func (s *Store) UpsertAttraction(ctx context.Context, a models.Attraction) error {
	imageURLs, err := json.Marshal(a.ImageURLs)
	if err != nil {
		return fmt.Errorf("failed to encode image urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attractions (`+attractionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			image_urls = excluded.image_urls,
			rating = excluded.rating,
			updated_at = excluded.updated_at,
			favorite = excluded.favorite,
			is_mine = excluded.is_mine,
			user_reaction = excluded.user_reaction,
			last_synced_at = excluded.last_synced_at`,
		a.ID, a.Name, a.Description, a.Category, a.Latitude, a.Longitude,
		string(imageURLs), a.Rating, toNanos(a.UpdatedAt),
		a.Favorite, a.IsMine, string(a.UserReaction), toNanos(a.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert attraction %q: %w", a.ID, err)
	}
	return nil
}

// DeleteAttraction removes the row with the given id. Deleting an absent id
// is a no-op; the return value reports whether a row was removed.
func (s *Store) DeleteAttraction(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attractions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete attraction %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// ListAttractions returns all cached attractions ordered by name.
func (s *Store) ListAttractions(ctx context.Context) ([]models.Attraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attractionColumns+` FROM attractions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attractions: %w", err)
	}
	defer rows.Close()

	var attractions []models.Attraction
	for rows.Next() {
		attraction, err := scanAttraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attraction: %w", err)
		}
		attractions = append(attractions, attraction)
	}
	return attractions, rows.Err()
}

// CountAttractions returns the number of cached attractions.
func (s *Store) CountAttractions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attractions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attractions: %w", err)
	}
	return count, nil
}

// SetFavorite flips the local-only favorite flag without touching the rest
// of the row.
func (s *Store) SetFavorite(ctx context.Context, id string, favorite bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attractions SET favorite = ? WHERE id = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to set favorite on %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("attraction %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttraction(row rowScanner) (models.Attraction, error) {
	var (
		a            models.Attraction
		imageURLs    string
		updatedAt    int64
		lastSyncedAt int64
		userReaction string
	)
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Category,
		&a.Latitude, &a.Longitude, &imageURLs, &a.Rating, &updatedAt,
		&a.Favorite, &a.IsMine, &userReaction, &lastSyncedAt)
	if err != nil {
		return models.Attraction{}, err
	}
	if err := json.Unmarshal([]byte(imageURLs), &a.ImageURLs); err != nil {
		return models.Attraction{}, fmt.Errorf("corrupt image urls for %q: %w", a.ID, err)
	}
	a.UpdatedAt = fromNanos(updatedAt)
	a.LastSyncedAt = fromNanos(lastSyncedAt)
	a.UserReaction = models.ReactionKind(userReaction)
	return a, nil
}

// toNanos converts a timestamp to its stored form; the zero time maps to 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
