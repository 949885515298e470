package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/tenauth/go-identity-server/tenants"
)

var _ tenants.Repo = (*Repo)(nil)

const uniqueViolation = "23505"

// Repo implements tenants.Repo on PostgreSQL. Uniqueness of usernames and
// (identity_type, identity) pairs is enforced by unique indexes; violations
// surface as the package sentinels.
type Repo struct {
	db *sql.DB
}

func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates the schema if it does not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tenant_identities (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	identity_type TEXT NOT NULL,
	identity TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (identity_type, identity)
);
CREATE TABLE IF NOT EXISTS tenant_api_keys (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants(id),
	key TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return pkgerrors.Wrap(err, "[postgres.Migrate] exec schema")
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, tenant *tenants.Tenant) error {
	const query = `
		INSERT INTO tenants (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID, tenant.Username, tenant.PasswordHash, tenant.CreatedAt, tenant.UpdatedAt)
	if isUniqueViolation(err) {
		return tenants.ErrUsernameTaken
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[postgres.Create] insert tenant")
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*tenants.Tenant, error) {
	const query = `
		SELECT id, username, password_hash, created_at, updated_at
		FROM tenants WHERE id = $1
	`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, id), "GetByID")
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*tenants.Tenant, error) {
	const query = `
		SELECT id, username, password_hash, created_at, updated_at
		FROM tenants WHERE username = $1
	`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, username), "GetByUsername")
}

func (r *Repo) GetByIdentity(ctx context.Context, identityType tenants.IdentityType, identity string) (*tenants.Tenant, error) {
	const query = `
		SELECT t.id, t.username, t.password_hash, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_identities ti ON ti.tenant_id = t.id
		WHERE ti.identity_type = $1 AND ti.identity = $2
	`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, string(identityType), identity), "GetByIdentity")
}

func (r *Repo) AddIdentity(ctx context.Context, identity *tenants.Identity) error {
	const query = `
		INSERT INTO tenant_identities (id, tenant_id, identity_type, identity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.TenantID, string(identity.IdentityType), identity.Identity,
		identity.CreatedAt, identity.UpdatedAt)
	if isUniqueViolation(err) {
		return tenants.ErrIdentityTaken
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[postgres.AddIdentity] insert identity")
	}
	return nil
}

func (r *Repo) CreateAPIKey(ctx context.Context, key *tenants.APIKey) error {
	const query = `
		INSERT INTO tenant_api_keys (id, tenant_id, key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		key.ID, key.TenantID, key.Key, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return pkgerrors.Wrap(err, "[postgres.CreateAPIKey] insert api key")
	}
	return nil
}

func (r *Repo) GetByAPIKey(ctx context.Context, key string) (*tenants.Tenant, error) {
	const query = `
		SELECT t.id, t.username, t.password_hash, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_api_keys k ON k.tenant_id = t.id
		WHERE k.key = $1
	`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, key), "GetByAPIKey")
}

func (r *Repo) scanTenant(row *sql.Row, method string) (*tenants.Tenant, error) {
	t := &tenants.Tenant{}
	err := row.Scan(&t.ID, &t.Username, &t.PasswordHash, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenants.ErrTenantNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "[postgres.%s] scan tenant", method)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
