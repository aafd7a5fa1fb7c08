package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

const (
	// defaultRequestTimeout is the total budget for a single HTTP attempt.
	// Generous on purpose: the target transport includes high-latency
	// cellular links.
	defaultRequestTimeout = 30 * time.Second

	// idempotencyKeyHeader marks a mutation as safe to replay. The backend
	// deduplicates on the key, so the executor may retry the request.
	idempotencyKeyHeader = "Idempotency-Key"
)

// TokenSource supplies access tokens for authenticated calls. Implemented by
// the session manager.
type TokenSource interface {
	// ValidAccessToken returns an access token that is expected to be
	// accepted by the backend, refreshing proactively when needed.
	ValidAccessToken(ctx context.Context) (string, error)

	// MarkExpired records that the current access token was rejected, so
	// the next ValidAccessToken call takes the refresh path.
	MarkExpired()
}

// API is the remote surface consumed by the sync engines and the reaction
// reconciler.
type API interface {
	// ListSince returns the records of collection changed after since.
	// A zero since means the beginning of time.
	ListSince(ctx context.Context, collection string, since time.Time) ([]json.RawMessage, error)

	// ListTombstonesSince returns deletions of collection after since.
	ListTombstonesSince(ctx context.Context, collection string, since time.Time) ([]models.Tombstone, error)

	// ListReviewsForAttraction returns approved reviews of one attraction
	// changed after since (all of them when since is zero).
	ListReviewsForAttraction(ctx context.Context, attractionID string, since time.Time) ([]models.Review, error)

	// UpsertReaction installs the caller's reaction on a review.
	UpsertReaction(ctx context.Context, reviewID string, kind models.ReactionKind) error

	// DeleteReaction removes the caller's reaction from a review.
	DeleteReaction(ctx context.Context, reviewID string) error

	// RefreshToken exchanges a refresh token for a new session.
	RefreshToken(ctx context.Context, refreshToken string) (models.Session, error)
}

// Collection names understood by the backend.
const (
	CollectionAttractions = "attractions"
	CollectionReviews     = "reviews"
)

// Client is the default API implementation over net/http.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *Executor
	tokens     TokenSource
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource attaches the session manager used for authenticated calls.
func WithTokenSource(tokens TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithExecutor replaces the retry executor.
func WithExecutor(executor *Executor) ClientOption {
	return func(c *Client) {
		c.executor = executor
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		executor:   NewExecutor(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// attractionPayload is the wire form of an attraction record.
type attractionPayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	ImageURLs   []string  `json:"image_urls"`
	Rating      float64   `json:"rating"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// reviewPayload is the wire form of a review record.
type reviewPayload struct {
	ID            string    `json:"id"`
	AttractionID  string    `json:"attraction_id"`
	Author        string    `json:"author"`
	Body          string    `json:"body"`
	Rating        int       `json:"rating"`
	Approved      bool      `json:"approved"`
	LikesCount    int       `json:"likes_count"`
	DislikesCount int       `json:"dislikes_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type tombstonePayload struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

// ListSince implements API.
func (c *Client) ListSince(ctx context.Context, collection string, since time.Time) ([]json.RawMessage, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("updated_after", since.UTC().Format(time.RFC3339Nano))
	}
	if collection == CollectionReviews {
		query.Set("approved", "true")
	}

	return Execute(ctx, c.executor, "list-"+collection, func(ctx context.Context) ([]json.RawMessage, error) {
		var records []json.RawMessage
		if err := c.getJSON(ctx, "/api/v1/"+collection, query, &records); err != nil {
			return nil, err
		}
		return records, nil
	})
}

// ListTombstonesSince implements API.
func (c *Client) ListTombstonesSince(ctx context.Context, collection string, since time.Time) ([]models.Tombstone, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("deleted_after", since.UTC().Format(time.RFC3339Nano))
	}

	payloads, err := Execute(ctx, c.executor, "list-tombstones-"+collection, func(ctx context.Context) ([]tombstonePayload, error) {
		var records []tombstonePayload
		if err := c.getJSON(ctx, "/api/v1/"+collection+"/tombstones", query, &records); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	tombstones := make([]models.Tombstone, 0, len(payloads))
	for _, p := range payloads {
		tombstones = append(tombstones, models.Tombstone{ID: p.ID, DeletedAt: p.DeletedAt})
	}
	return tombstones, nil
}

// ListReviewsForAttraction implements API.
func (c *Client) ListReviewsForAttraction(ctx context.Context, attractionID string, since time.Time) ([]models.Review, error) {
	query := url.Values{}
	query.Set("attraction_id", attractionID)
	query.Set("approved", "true")
	if !since.IsZero() {
		query.Set("updated_after", since.UTC().Format(time.RFC3339Nano))
	}

	payloads, err := Execute(ctx, c.executor, "list-reviews-for-attraction", func(ctx context.Context) ([]reviewPayload, error) {
		var records []reviewPayload
		if err := c.getJSON(ctx, "/api/v1/reviews", query, &records); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	reviews := make([]models.Review, 0, len(payloads))
	for _, p := range payloads {
		reviews = append(reviews, reviewFromPayload(p))
	}
	return reviews, nil
}

// UpsertReaction implements API. The request carries an idempotency key, so
// the executor is allowed to retry it.
func (c *Client) UpsertReaction(ctx context.Context, reviewID string, kind models.ReactionKind) error {
	body, err := json.Marshal(reactionRequest{Reaction: string(kind)})
	if err != nil {
		return NewError(models.ErrorKindSerialization, err)
	}

	idempotencyKey := uuid.NewString()
	_, err = Execute(ctx, c.executor, "upsert-reaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, http.MethodPut, "/api/v1/reviews/"+reviewID+"/reaction", body, idempotencyKey, true, nil)
	})
	return err
}

// DeleteReaction implements API. Deletes are idempotent, so the same
// retry policy applies.
func (c *Client) DeleteReaction(ctx context.Context, reviewID string) error {
	idempotencyKey := uuid.NewString()
	_, err := Execute(ctx, c.executor, "delete-reaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, http.MethodDelete, "/api/v1/reviews/"+reviewID+"/reaction", nil, idempotencyKey, true, nil)
	})
	return err
}

// RefreshToken implements API. The exchange rotates the refresh token, so it
// is never replayed; a failure is surfaced to the session manager after a
// single attempt.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (models.Session, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return models.Session{}, NewError(models.ErrorKindSerialization, err)
	}

	resp, err := ExecuteOnce(ctx, c.executor, "refresh-token", func(ctx context.Context) (refreshResponse, error) {
		var out refreshResponse
		if err := c.send(ctx, http.MethodPost, "/api/v1/auth/refresh", body, "", false, &out); err != nil {
			return refreshResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return models.Session{}, err
	}

	session := models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
	}
	if !session.Valid() {
		return models.Session{}, NewError(models.ErrorKindSerialization,
			fmt.Errorf("refresh response missing token fields"))
	}
	return session, nil
}

// DecodeAttraction parses an attraction record fetched through ListSince.
func DecodeAttraction(raw json.RawMessage) (models.Attraction, error) {
	var p attractionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Attraction{}, NewError(models.ErrorKindSerialization, err)
	}
	if p.ID == "" {
		return models.Attraction{}, NewError(models.ErrorKindSerialization,
			fmt.Errorf("attraction record missing id"))
	}
	return models.Attraction{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		ImageURLs:   p.ImageURLs,
		Rating:      p.Rating,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

// DecodeReview parses a review record fetched through ListSince.
func DecodeReview(raw json.RawMessage) (models.Review, error) {
	var p reviewPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Review{}, NewError(models.ErrorKindSerialization, err)
	}
	if p.ID == "" {
		return models.Review{}, NewError(models.ErrorKindSerialization,
			fmt.Errorf("review record missing id"))
	}
	return reviewFromPayload(p), nil
}

func reviewFromPayload(p reviewPayload) models.Review {
	return models.Review{
		ID:            p.ID,
		AttractionID:  p.AttractionID,
		Author:        p.Author,
		Body:          p.Body,
		Rating:        p.Rating,
		Approved:      p.Approved,
		LikesCount:    p.LikesCount,
		DislikesCount: p.DislikesCount,
		UpdatedAt:     p.UpdatedAt,
	}
}

// getJSON performs an authenticated-when-possible GET and decodes the body.
// Reads are public on this backend, so a missing token source just means an
// anonymous request.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.send(ctx, http.MethodGet, path+"?"+query.Encode(), nil, "", false, out)
}

// send performs one HTTP round trip. When authed is true a bearer token is
// attached and a 401 response triggers exactly one retry with a freshly
// obtained token; anonymous requests never touch the session manager.
func (c *Client) send(ctx context.Context, method, path string, body []byte, idempotencyKey string, authed bool, out any) error {
	retriedAuth := false
	for {
		err := c.roundTrip(ctx, method, path, body, idempotencyKey, authed, out)
		if err == nil {
			return nil
		}

		if authed && !retriedAuth && c.tokens != nil && KindOf(err) == models.ErrorKindUnauthorized {
			retriedAuth = true
			c.tokens.MarkExpired()
			c.logger.Debug("Retrying request with refreshed token", "path", path)
			continue
		}
		return err
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, idempotencyKey string, authed bool, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}

	if authed {
		if c.tokens == nil {
			return NewError(models.ErrorKindUnauthorized, fmt.Errorf("no token source configured"))
		}
		token, err := c.tokens.ValidAccessToken(ctx)
		if err != nil {
			return NewError(models.ErrorKindUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return NewHTTPError(resp.StatusCode, c.baseURL+path, string(message))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(models.ErrorKindSerialization, err)
	}
	return nil
}
