// Package auth implements password sign-in, refresh-token rotation,
// revocation, and API-key issuance for tenants.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tenauth/go-identity-server/sessions"
	"github.com/tenauth/go-identity-server/tenants"
	"github.com/tenauth/go-identity-server/token"
)

const apiKeyLength = 32 // bytes of entropy per API key

// TokenPair is the result of a successful sign-in or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Deps holds the collaborators of the Service.
type Deps struct {
	Tenants  tenants.Repo
	Sessions *sessions.Manager
	Minter   *token.Minter
}

// Service is the authentication and session orchestrator.
type Service struct {
	deps    Deps
	logger  zerolog.Logger
	nowTime func() time.Time
}

// Option modifies a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) { s.nowTime = nowFunc }
}

// New creates an auth Service with required dependencies.
func New(deps Deps, options ...Option) (*Service, error) {
	if deps.Tenants == nil {
		return nil, pkgerrors.New("[auth.New] Tenants repo is required")
	}
	if deps.Sessions == nil {
		return nil, pkgerrors.New("[auth.New] Sessions manager is required")
	}
	if deps.Minter == nil {
		return nil, pkgerrors.New("[auth.New] Minter is required")
	}

	s := &Service{
		deps:    deps,
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// SignInWithPassword verifies the credential for the identity and, on
// success, opens a new session and mints an access token.
func (s *Service) SignInWithPassword(ctx context.Context, identityType tenants.IdentityType, identity, password string) (*TokenPair, error) {
	tenant, err := s.deps.Tenants.GetByIdentity(ctx, identityType, identity)
	if pkgerrors.Is(err, tenants.ErrTenantNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.SignInWithPassword] Tenants.GetByIdentity")
	}

	if !tenants.CheckPasswordHash(password, tenant.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	session, err := s.deps.Sessions.Create(ctx, tenant.ID, nil)
	if err != nil {
		// ErrSessionLimitExceeded passes through untouched.
		return nil, pkgerrors.Wrap(err, "[Service.SignInWithPassword] Sessions.Create")
	}

	accessToken, err := s.deps.Minter.Mint(tenant.ID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.SignInWithPassword] Minter.Mint")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: session.ID}, nil
}

// RefreshToken rotates the presented refresh token: the old session is
// consumed, a replacement is created for the same tenant, and a fresh
// access token is minted. The old token is permanently invalid the moment
// a rotation succeeds.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, err := s.deps.Sessions.Rotate(ctx, refreshToken)
	if err != nil {
		// ErrInvalidRefreshToken passes through untouched.
		return nil, pkgerrors.Wrap(err, "[Service.RefreshToken] Sessions.Rotate")
	}

	accessToken, err := s.deps.Minter.Mint(session.TenantID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.RefreshToken] Minter.Mint")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: session.ID}, nil
}

// RevokeRefreshToken deletes the matching session. Revoking an unknown or
// already-revoked token is a no-op success.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if err := s.deps.Sessions.Revoke(ctx, refreshToken); err != nil {
		return pkgerrors.Wrap(err, "[Service.RevokeRefreshToken] Sessions.Revoke")
	}
	return nil
}

// GenerateAPIKey creates and persists a new opaque API key for the tenant.
// Keys have no expiry.
func (s *Service) GenerateAPIKey(ctx context.Context, tenantID string) (string, error) {
	if _, err := s.deps.Tenants.GetByID(ctx, tenantID); err != nil {
		if pkgerrors.Is(err, tenants.ErrTenantNotFound) {
			return "", ErrUserNotFound
		}
		return "", pkgerrors.Wrap(err, "[Service.GenerateAPIKey] Tenants.GetByID")
	}

	keyBytes := make([]byte, apiKeyLength)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", pkgerrors.Wrap(err, "[Service.GenerateAPIKey] rand.Read")
	}
	key := hex.EncodeToString(keyBytes)

	now := s.nowTime()
	if err := s.deps.Tenants.CreateAPIKey(ctx, &tenants.APIKey{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", pkgerrors.Wrap(err, "[Service.GenerateAPIKey] Tenants.CreateAPIKey")
	}

	return key, nil
}

// TenantByAPIKey resolves the tenant owning an API key. Used by the
// API-key request filter.
func (s *Service) TenantByAPIKey(ctx context.Context, key string) (*tenants.Tenant, error) {
	tenant, err := s.deps.Tenants.GetByAPIKey(ctx, key)
	if pkgerrors.Is(err, tenants.ErrTenantNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.TenantByAPIKey] Tenants.GetByAPIKey")
	}
	return tenant, nil
}

// TenantByAccessToken verifies a bearer token and resolves its tenant.
// Used by the bearer-token request filter.
func (s *Service) TenantByAccessToken(ctx context.Context, rawToken string) (*tenants.Tenant, error) {
	parsed, err := s.deps.Minter.Parse(rawToken)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	tenant, err := s.deps.Tenants.GetByID(ctx, parsed.Subject)
	if pkgerrors.Is(err, tenants.ErrTenantNotFound) {
		return nil, ErrInvalidAccessToken
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.TenantByAccessToken] Tenants.GetByID")
	}
	return tenant, nil
}
