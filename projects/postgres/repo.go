package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/tenauth/go-identity-server/projects"
)

var _ projects.Repo = (*Repo)(nil)

const uniqueViolation = "23505"

// Repo implements projects.Repo on PostgreSQL. Uniqueness of usernames per
// project and of (project, identity_type, identity) triples is enforced by
// unique indexes; violations surface as the package sentinels.
type Repo struct {
	db *sql.DB
}

func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates the schema if it does not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS project_users (
	id UUID PRIMARY KEY,
	project_id UUID NOT NULL REFERENCES projects(id),
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (project_id, username)
);
CREATE TABLE IF NOT EXISTS project_user_identities (
	id UUID PRIMARY KEY,
	project_id UUID NOT NULL REFERENCES projects(id),
	user_id UUID NOT NULL REFERENCES project_users(id),
	identity_type TEXT NOT NULL,
	identity TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (project_id, identity_type, identity)
);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return pkgerrors.Wrap(err, "[postgres.Migrate] exec schema")
	}
	return nil
}

func (r *Repo) CreateProject(ctx context.Context, project *projects.Project) error {
	const query = `
		INSERT INTO projects (id, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.TenantID, project.Name, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return pkgerrors.Wrap(err, "[postgres.CreateProject] insert project")
	}
	return nil
}

func (r *Repo) GetProject(ctx context.Context, id string) (*projects.Project, error) {
	const query = `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM projects WHERE id = $1
	`
	p := &projects.Project{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, projects.ErrProjectNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[postgres.GetProject] scan project")
	}
	return p, nil
}

func (r *Repo) CreateUser(ctx context.Context, user *projects.User) error {
	const query = `
		INSERT INTO project_users (id, project_id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.ProjectID, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return projects.ErrUsernameTaken
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[postgres.CreateUser] insert user")
	}
	return nil
}

func (r *Repo) GetUser(ctx context.Context, id string) (*projects.User, error) {
	const query = `
		SELECT id, project_id, username, password_hash, created_at, updated_at
		FROM project_users WHERE id = $1
	`
	u := &projects.User{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.ProjectID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, projects.ErrUserNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[postgres.GetUser] scan user")
	}
	return u, nil
}

func (r *Repo) AddUserIdentity(ctx context.Context, identity *projects.UserIdentity) error {
	const query = `
		INSERT INTO project_user_identities (id, project_id, user_id, identity_type, identity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.ProjectID, identity.UserID, string(identity.IdentityType),
		identity.Identity, identity.CreatedAt, identity.UpdatedAt)
	if isUniqueViolation(err) {
		return projects.ErrIdentityTaken
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[postgres.AddUserIdentity] insert identity")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
