package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

type sessionRow struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// GetSession loads the persisted session. ok is false when no session is
// stored.
func (s *Store) GetSession(ctx context.Context) (models.Session, bool, error) {
	value, ok, err := s.GetValue(ctx, sessionKey)
	if err != nil || !ok {
		return models.Session{}, false, err
	}

	var row sessionRow
	if err := json.Unmarshal([]byte(value), &row); err != nil {
		return models.Session{}, false, fmt.Errorf("corrupt session record: %w", err)
	}
	return models.Session{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, true, nil
}

// SetSession persists the session, replacing any previous one atomically.
func (s *Store) SetSession(ctx context.Context, session models.Session) error {
	value, err := json.Marshal(sessionRow{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.SetValue(ctx, sessionKey, string(value))
}

// ClearSession removes the persisted session.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.DeleteValue(ctx, sessionKey)
}
