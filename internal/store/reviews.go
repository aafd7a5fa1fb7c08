package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

const reviewColumns = `id, attraction_id, author, body, rating, approved,
	likes_count, dislikes_count, updated_at, user_reaction, is_mine, last_synced_at`

// GetReview returns the cached review with the given id.
func (s *Store) GetReview(ctx context.Context, id string) (models.Review, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Review{}, false, nil
	}
	if err != nil {
		return models.Review{}, false, fmt.Errorf("failed to read review %q: %w", id, err)
	}
	return review, true, nil
}

// UpsertReview writes the full row in a single atomic replace.
func (s *Store) UpsertReview(ctx context.Context, r models.Review) error {
	return s.upsertReview(ctx, s.db.ExecContext, r)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (*Store) upsertReview(ctx context.Context, exec execFunc, r models.Review) error {
	_, err := exec(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			attraction_id = excluded.attraction_id,
			author = excluded.author,
			body = excluded.body,
			rating = excluded.rating,
			approved = excluded.approved,
			likes_count = excluded.likes_count,
			dislikes_count = excluded.dislikes_count,
			updated_at = excluded.updated_at,
			user_reaction = excluded.user_reaction,
			is_mine = excluded.is_mine,
			last_synced_at = excluded.last_synced_at`,
		r.ID, r.AttractionID, r.Author, r.Body, r.Rating, r.Approved,
		r.LikesCount, r.DislikesCount, toNanos(r.UpdatedAt),
		string(r.UserReaction), r.IsMine, toNanos(r.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert review %q: %w", r.ID, err)
	}
	return nil
}

// DeleteReview removes the row with the given id; absent ids are a no-op.
func (s *Store) DeleteReview(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete review %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// ListReviewsForAttraction returns the cached reviews of one attraction,
// newest first.
func (s *Store) ListReviewsForAttraction(ctx context.Context, attractionID string) ([]models.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE attraction_id = ? ORDER BY updated_at DESC`,
		attractionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for %q: %w", attractionID, err)
	}
	defer rows.Close()
	return collectReviews(rows)
}

// CountReviews returns the number of cached reviews across all attractions.
func (s *Store) CountReviews(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

// MaxReviewUpdatedAt returns the newest updated_at over all cached reviews.
// ok is false when the cache is empty.
func (s *Store) MaxReviewUpdatedAt(ctx context.Context) (time.Time, bool, error) {
	return s.maxUpdatedAt(ctx,
		`SELECT MAX(updated_at) FROM reviews`)
}

// MaxReviewUpdatedAtForAttraction is the per-attraction variant of
// MaxReviewUpdatedAt.
func (s *Store) MaxReviewUpdatedAtForAttraction(ctx context.Context, attractionID string) (time.Time, bool, error) {
	return s.maxUpdatedAt(ctx,
		`SELECT MAX(updated_at) FROM reviews WHERE attraction_id = ?`, attractionID)
}

func (s *Store) maxUpdatedAt(ctx context.Context, query string, args ...any) (time.Time, bool, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read max updated_at: %w", err)
	}
	if !max.Valid || max.Int64 == 0 {
		return time.Time{}, false, nil
	}
	return fromNanos(max.Int64), true, nil
}

// ReplaceAllReviews swaps the whole review cache for the given set in one
// transaction. Used by the bulk sync path when the cache is empty or being
// rebuilt.
func (s *Store) ReplaceAllReviews(ctx context.Context, reviews []models.Review) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews`); err != nil {
			return fmt.Errorf("failed to clear reviews: %w", err)
		}
		for _, r := range reviews {
			if err := s.upsertReview(ctx, tx.ExecContext, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetReviewReaction updates the local-only reaction and both counters in a
// single atomic write, so a concurrent sync never observes a half-applied
// toggle.
func (s *Store) SetReviewReaction(ctx context.Context, id string, kind models.ReactionKind, likes, dislikes int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET user_reaction = ?, likes_count = ?, dislikes_count = ? WHERE id = ?`,
		string(kind), likes, dislikes, id)
	if err != nil {
		return fmt.Errorf("failed to set reaction on %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("review %q not found", id)
	}
	return nil
}

// ReviewsFetchedAt returns when reviews for attractionID were last fetched
// from the backend. ok is false when they never were.
func (s *Store) ReviewsFetchedAt(ctx context.Context, attractionID string) (time.Time, bool, error) {
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM review_fetches WHERE attraction_id = ?`, attractionID).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read review fetch time: %w", err)
	}
	return fromNanos(fetchedAt), true, nil
}

// TouchReviewsFetched records a successful per-attraction review fetch.
func (s *Store) TouchReviewsFetched(ctx context.Context, attractionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_fetches (attraction_id, fetched_at) VALUES (?, ?)
		 ON CONFLICT(attraction_id) DO UPDATE SET fetched_at = excluded.fetched_at`,
		attractionID, toNanos(at))
	if err != nil {
		return fmt.Errorf("failed to record review fetch: %w", err)
	}
	return nil
}

func collectReviews(rows *sql.Rows) ([]models.Review, error) {
	var reviews []models.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

func scanReview(row rowScanner) (models.Review, error) {
	var (
		r            models.Review
		updatedAt    int64
		lastSyncedAt int64
		userReaction string
	)
	err := row.Scan(&r.ID, &r.AttractionID, &r.Author, &r.Body, &r.Rating,
		&r.Approved, &r.LikesCount, &r.DislikesCount, &updatedAt,
		&userReaction, &r.IsMine, &lastSyncedAt)
	if err != nil {
		return models.Review{}, err
	}
	r.UpdatedAt = fromNanos(updatedAt)
	r.LastSyncedAt = fromNanos(lastSyncedAt)
	r.UserReaction = models.ReactionKind(userReaction)
	return r, nil
}
