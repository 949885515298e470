package tenants

import "time"

// IdentityType classifies a verified credential handle bound to a tenant.
type IdentityType string

const (
	IdentityTypeEmail    IdentityType = "EMAIL"
	IdentityTypeUsername IdentityType = "USERNAME"
	IdentityTypeUserID   IdentityType = "USER_ID"
)

// Valid reports whether the value is one of the known identity types.
func (t IdentityType) Valid() bool {
	switch t {
	case IdentityTypeEmail, IdentityTypeUsername, IdentityTypeUserID:
		return true
	}
	return false
}

// Tenant is a top-level account on the platform. The password hash never
// leaves this package unserialized.
type Tenant struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is a uniquely-claimed (type, value) pair owned by exactly one
// tenant. Created during signup completion, never mutated.
type Identity struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	IdentityType IdentityType `json:"identity_type"`
	Identity     string       `json:"identity"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// APIKey is a long-lived opaque capability for server-to-server calls.
type APIKey struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
