package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned by lookups and deletes with no
	// matching session. A failed Delete is how the loser of a rotation
	// race learns the token was already claimed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRefreshToken is returned when a presented refresh token
	// matches no live session.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrSessionLimitExceeded is returned when a tenant is at its cap of
	// simultaneous live sessions. A hard cap: nothing is evicted.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
)

// Session is a refresh-token record. The ID itself is the refresh-token
// value handed to the client; there is no separate secret.
type Session struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Repo is the durable session store. Delete must be atomic: when two
// callers race to delete the same id, exactly one sees success and the
// other ErrSessionNotFound.
type Repo interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, tenantID string, now time.Time) error
	CountLive(ctx context.Context, tenantID string, now time.Time) (int, error)
}
