// Package models defines the value types shared by the sync engine,
// the local cache, and the remote client.
package models

import "time"

// ReactionKind represents a user's reaction to a review.
type ReactionKind string

const (
	// ReactionNone means the user has no active reaction
	ReactionNone ReactionKind = ""

	// ReactionLike means the user has liked the entity
	ReactionLike ReactionKind = "like"

	// ReactionDislike means the user has disliked the entity
	ReactionDislike ReactionKind = "dislike"
)

// Valid reports whether k is one of the three known reaction kinds.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionNone, ReactionLike, ReactionDislike:
		return true
	default:
		return false
	}
}

// Attraction is the locally cached form of a remote attraction record.
//
// The remote payload fields are replaced wholesale on every merge; the
// local-only fields (Favorite, IsMine, UserReaction, LastSyncedAt) have no
// server representation and must be copied forward from the previous row.
type Attraction struct {
	ID          string
	Name        string
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	ImageURLs   []string
	Rating      float64
	UpdatedAt   time.Time

	// Local-only fields, never overwritten by sync.
	Favorite     bool
	IsMine       bool
	UserReaction ReactionKind
	LastSyncedAt time.Time
}

// MergeFrom returns a copy of remote with the local-only fields of the
// receiver carried forward. The receiver is the row currently cached.
func (a Attraction) MergeFrom(remote Attraction) Attraction {
	remote.Favorite = a.Favorite
	remote.IsMine = a.IsMine
	remote.UserReaction = a.UserReaction
	remote.LastSyncedAt = a.LastSyncedAt
	return remote
}

// Review is the locally cached form of a remote review record attached to
// an attraction.
type Review struct {
	ID            string
	AttractionID  string
	Author        string
	Body          string
	Rating        int
	Approved      bool
	LikesCount    int
	DislikesCount int
	UpdatedAt     time.Time

	// Local-only fields, never overwritten by sync.
	UserReaction ReactionKind
	IsMine       bool
	LastSyncedAt time.Time
}

// MergeFrom returns a copy of remote with the local-only fields of the
// receiver carried forward.
func (r Review) MergeFrom(remote Review) Review {
	remote.UserReaction = r.UserReaction
	remote.IsMine = r.IsMine
	remote.LastSyncedAt = r.LastSyncedAt
	return remote
}

// Tombstone signals that a remote record was deleted and the matching local
// row must be removed.
type Tombstone struct {
	ID        string
	DeletedAt time.Time
}

// Session holds the token pair issued at sign-in. ExpiresAt is epoch seconds.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// Valid reports whether the session carries a usable token pair.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Expired reports whether the access token has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// NeedsRefresh reports whether the remaining lifetime is below margin and a
// proactive refresh should be attempted before using the access token.
func (s Session) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return time.Unix(s.ExpiresAt, 0).Sub(now) < margin
}
