// Package projects is the project and sub-user layer: tenants group their
// own end users into projects, with the same OTP-gated identity
// verification the tenant signup flow uses.
package projects

import (
	"context"
	"errors"
	"time"

	"github.com/tenauth/go-identity-server/tenants"
)

var (
	ErrProjectNotFound         = errors.New("project not found")
	ErrUnsupportedIdentityType = errors.New("unsupported identity type")
	ErrUserNotFound            = errors.New("project user not found")
	ErrUsernameTaken           = errors.New("project username taken")
	ErrIdentityTaken           = errors.New("project identity taken")
	ErrWrongTenant             = errors.New("project does not belong to tenant")
	ErrInvalidToken            = errors.New("invalid verification token")
	ErrInvalidOtp              = errors.New("invalid otp")
	ErrCorruptMetadata         = errors.New("corrupt verification metadata")
)

// Project groups a tenant's end users.
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an end user within a project. The password is optional; some
// projects authenticate users only through verified identities.
type User struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserIdentity is a verified identity bound to a project user. Unique per
// (project, identityType, identity).
type UserIdentity struct {
	ID           string               `json:"id"`
	ProjectID    string               `json:"project_id"`
	UserID       string               `json:"user_id"`
	IdentityType tenants.IdentityType `json:"identity_type"`
	Identity     string               `json:"identity"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Repo is the durable project store.
type Repo interface {
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	AddUserIdentity(ctx context.Context, identity *UserIdentity) error
}
