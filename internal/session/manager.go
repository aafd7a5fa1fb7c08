// Package session owns the access/refresh token pair and its lifecycle:
// proactive refresh ahead of expiry, reactive refresh after a 401, and
// single-flight semantics so concurrent callers share one refresh call.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

// defaultRefreshMargin is how long before expiry a proactive refresh kicks in.
const defaultRefreshMargin = 60 * time.Second

var (
	// ErrNoSession means no user is signed in; the caller must not issue
	// authenticated requests.
	ErrNoSession = errors.New("no active session")

	// ErrReauthRequired means the session could not be refreshed and was
	// cleared; the user has to sign in again.
	ErrReauthRequired = errors.New("re-authentication required")
)

// Refresher exchanges a refresh token for a new session. Implemented by the
// remote client; the exchange itself is an anonymous call and can never
// recursively trigger another refresh.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (models.Session, error)
}

// Storage persists the session across process restarts. Implemented by the
// local store's KV table.
type Storage interface {
	GetSession(ctx context.Context) (models.Session, bool, error)
	SetSession(ctx context.Context, session models.Session) error
	ClearSession(ctx context.Context) error
}

// Manager is the only component allowed to mutate the session.
type Manager interface {
	// Set installs a session obtained from sign-in or sign-up.
	Set(ctx context.Context, session models.Session) error

	// Clear destroys the session (sign-out).
	Clear(ctx context.Context) error

	// Current returns a copy of the session; ok is false when signed out.
	Current() (models.Session, bool)

	// ValidAccessToken returns an access token expected to be accepted by
	// the backend, refreshing proactively when the remaining lifetime is
	// below the margin. Concurrent callers share a single refresh call.
	ValidAccessToken(ctx context.Context) (string, error)

	// MarkExpired forces the next ValidAccessToken call down the refresh
	// path. The remote client calls this after a 401.
	MarkExpired()
}

type manager struct {
	refresher Refresher
	storage   Storage
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.RWMutex
	session models.Session
	ok      bool

	flight singleflight.Group
}

// Option configures a Manager.
type Option func(*manager)

// WithRefreshMargin overrides the proactive refresh margin.
func WithRefreshMargin(margin time.Duration) Option {
	return func(m *manager) {
		if margin > 0 {
			m.margin = margin
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager, loading any persisted session from storage.
func NewManager(ctx context.Context, refresher Refresher, storage Storage, opts ...Option) (Manager, error) {
	m := &manager{
		refresher: refresher,
		storage:   storage,
		margin:    defaultRefreshMargin,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	session, ok, err := storage.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	m.session = session
	m.ok = ok && session.Valid()
	return m, nil
}

func (m *manager) Set(ctx context.Context, session models.Session) error {
	if !session.Valid() {
		return fmt.Errorf("refusing to install incomplete session")
	}
	if err := m.storage.SetSession(ctx, session); err != nil {
		return err
	}

	m.mu.Lock()
	m.session = session
	m.ok = true
	m.mu.Unlock()
	return nil
}

func (m *manager) Clear(ctx context.Context) error {
	if err := m.storage.ClearSession(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.session = models.Session{}
	m.ok = false
	m.mu.Unlock()
	return nil
}

func (m *manager) Current() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.ok
}

func (m *manager) MarkExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ok {
		m.session.ExpiresAt = 0
	}
}

func (m *manager) ValidAccessToken(ctx context.Context) (string, error) {
	session, ok := m.Current()
	if !ok {
		return "", ErrNoSession
	}
	if !session.NeedsRefresh(m.now(), m.margin) {
		return session.AccessToken, nil
	}

	// All concurrent callers funnel into one refresh; losers get the token
	// the winner installed.
	token, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refresh runs inside the single-flight group.
func (m *manager) refresh(ctx context.Context) (string, error) {
	// Re-read under the flight: a previous winner may have already
	// installed a fresh token between our check and this call.
	current, ok := m.Current()
	if !ok {
		return "", ErrNoSession
	}
	now := m.now()
	if !current.NeedsRefresh(now, m.margin) {
		return current.AccessToken, nil
	}

	fresh, err := m.refresher.RefreshToken(ctx, current.RefreshToken)
	if err == nil {
		if setErr := m.Set(ctx, fresh); setErr != nil {
			return "", setErr
		}
		m.logger.Debug("Access token refreshed",
			"expires_at", time.Unix(fresh.ExpiresAt, 0).UTC())
		return fresh.AccessToken, nil
	}

	// Soft-fail: the current token may still be honored for a short while.
	if !current.Expired(now) {
		m.logger.Warn("Token refresh failed, keeping current token",
			"error", err,
			"expires_at", time.Unix(current.ExpiresAt, 0).UTC())
		return current.AccessToken, nil
	}

	m.logger.Warn("Token refresh failed with expired token, clearing session", "error", err)
	if clearErr := m.Clear(ctx); clearErr != nil {
		m.logger.Error("Failed to clear session", "error", clearErr)
	}
	return "", fmt.Errorf("%w: %v", ErrReauthRequired, err)
}
