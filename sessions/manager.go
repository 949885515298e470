package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is the lifetime of a session at creation.
	DefaultTTL = 30 * 24 * time.Hour

	// DefaultMaxSimultaneous is the per-tenant cap on live sessions.
	DefaultMaxSimultaneous = 5
)

// Manager enforces the session lifecycle: TTL at creation, the per-tenant
// cap with a lazy expiry sweep, one-time rotation, and idempotent
// revocation.
type Manager struct {
	repo            Repo
	ttl             time.Duration
	maxSimultaneous int
	logger          zerolog.Logger
	nowTime         func() time.Time
	tenantLocks     sync.Map // tenantID -> *sync.Mutex
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithMaxSimultaneous overrides the per-tenant session cap.
func WithMaxSimultaneous(max int) ManagerOption {
	return func(m *Manager) { m.maxSimultaneous = max }
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// NewManager creates a session Manager over the given repo.
func NewManager(repo Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, pkgerrors.New("[NewManager] repo is required")
	}
	m := &Manager{
		repo:            repo,
		ttl:             DefaultTTL,
		maxSimultaneous: DefaultMaxSimultaneous,
		logger:          zerolog.Nop(),
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Create makes a new session for the tenant after sweeping its expired
// sessions and checking the cap. The session id is the refresh token.
// The sweep-count-insert sequence is serialized per tenant so two
// concurrent creations cannot both pass the cap check.
func (m *Manager) Create(ctx context.Context, tenantID string, metadata map[string]string) (*Session, error) {
	lock := m.lockForTenant(tenantID)
	lock.Lock()
	defer lock.Unlock()

	now := m.nowTime()

	if err := m.repo.DeleteExpired(ctx, tenantID, now); err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.Create] repo.DeleteExpired")
	}

	live, err := m.repo.CountLive(ctx, tenantID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.Create] repo.CountLive")
	}
	if live >= m.maxSimultaneous {
		return nil, ErrSessionLimitExceeded
	}

	session := &Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Metadata:  metadata,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.Create] repo.Create")
	}
	return session, nil
}

// Rotate consumes the presented refresh token and returns its replacement.
// The delete is the atomic claim: of two concurrent rotations of the same
// token, exactly one wins; the other gets ErrInvalidRefreshToken.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := m.repo.Get(ctx, refreshToken)
	if pkgerrors.Is(err, ErrSessionNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.Rotate] repo.Get")
	}

	if session.Expired(m.nowTime()) {
		if err := m.repo.Delete(ctx, refreshToken); err != nil && !pkgerrors.Is(err, ErrSessionNotFound) {
			return nil, pkgerrors.Wrap(err, "[Manager.Rotate] delete expired session")
		}
		return nil, ErrInvalidRefreshToken
	}

	if err := m.repo.Delete(ctx, refreshToken); err != nil {
		if pkgerrors.Is(err, ErrSessionNotFound) {
			// Lost the race: another caller already rotated this token.
			return nil, ErrInvalidRefreshToken
		}
		return nil, pkgerrors.Wrap(err, "[Manager.Rotate] repo.Delete")
	}

	replacement, err := m.Create(ctx, session.TenantID, session.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.Rotate] create replacement")
	}
	return replacement, nil
}

// Revoke deletes the session matching the token. Revoking an unknown or
// already-revoked token is a no-op success.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	err := m.repo.Delete(ctx, refreshToken)
	if pkgerrors.Is(err, ErrSessionNotFound) {
		m.logger.Warn().Msg("no session found to revoke")
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[Manager.Revoke] repo.Delete")
	}
	return nil
}

// Get returns the live session for a refresh token.
func (m *Manager) Get(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := m.repo.Get(ctx, refreshToken)
	if pkgerrors.Is(err, ErrSessionNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Manager.Get] repo.Get")
	}
	if session.Expired(m.nowTime()) {
		return nil, ErrInvalidRefreshToken
	}
	return session, nil
}

func (m *Manager) lockForTenant(tenantID string) *sync.Mutex {
	lock, _ := m.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
