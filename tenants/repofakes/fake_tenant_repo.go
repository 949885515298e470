package repofakes

import (
	"context"
	"sync"

	"github.com/tenauth/go-identity-server/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type identityKey struct {
	identityType tenants.IdentityType
	identity     string
}

// FakeTenantRepo is an in-memory tenants.Repo for tests and standalone runs.
// The single mutex serializes every mutation, which also makes the
// uniqueness checks atomic with the inserts.
type FakeTenantRepo struct {
	tenantsByID map[string]*tenants.Tenant
	usernames   map[string]string      // username -> tenant ID
	identities  map[identityKey]string // (type, value) -> tenant ID
	apiKeys     map[string]string      // key -> tenant ID
	lock        sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{
		tenantsByID: make(map[string]*tenants.Tenant),
		usernames:   make(map[string]string),
		identities:  make(map[identityKey]string),
		apiKeys:     make(map[string]string),
	}
}

func (r *FakeTenantRepo) Create(_ context.Context, tenant *tenants.Tenant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, taken := r.usernames[tenant.Username]; taken {
		return tenants.ErrUsernameTaken
	}
	copied := *tenant
	r.tenantsByID[tenant.ID] = &copied
	r.usernames[tenant.Username] = tenant.ID
	return nil
}

func (r *FakeTenantRepo) GetByID(_ context.Context, id string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.tenantByID(id)
}

func (r *FakeTenantRepo) GetByUsername(_ context.Context, username string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.usernames[username]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	return r.tenantByID(id)
}

func (r *FakeTenantRepo) GetByIdentity(_ context.Context, identityType tenants.IdentityType, identity string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.identities[identityKey{identityType, identity}]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	return r.tenantByID(id)
}

func (r *FakeTenantRepo) AddIdentity(_ context.Context, identity *tenants.Identity) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := identityKey{identity.IdentityType, identity.Identity}
	if _, taken := r.identities[key]; taken {
		return tenants.ErrIdentityTaken
	}
	r.identities[key] = identity.TenantID
	return nil
}

func (r *FakeTenantRepo) CreateAPIKey(_ context.Context, key *tenants.APIKey) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.apiKeys[key.Key] = key.TenantID
	return nil
}

func (r *FakeTenantRepo) GetByAPIKey(_ context.Context, key string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.apiKeys[key]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	return r.tenantByID(id)
}

func (r *FakeTenantRepo) tenantByID(id string) (*tenants.Tenant, error) {
	tenant, ok := r.tenantsByID[id]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	copied := *tenant
	return &copied, nil
}
