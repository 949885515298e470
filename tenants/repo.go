package tenants

import (
	"context"
	"errors"
)

var (
	// ErrTenantNotFound is returned by lookups with no matching tenant.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrUsernameTaken is returned when creating a tenant whose username
	// is already claimed.
	ErrUsernameTaken = errors.New("username taken")

	// ErrIdentityTaken is returned when an (identityType, identity) pair
	// is already bound to some tenant.
	ErrIdentityTaken = errors.New("identity taken")
)

// Repo is the durable tenant directory. Implementations must uphold the
// uniqueness of usernames and of (identityType, identity) pairs.
type Repo interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByUsername(ctx context.Context, username string) (*Tenant, error)
	GetByIdentity(ctx context.Context, identityType IdentityType, identity string) (*Tenant, error)
	AddIdentity(ctx context.Context, identity *Identity) error
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetByAPIKey(ctx context.Context, key string) (*Tenant, error)
}
