package repofakes

import (
	"context"
	"sync"

	"github.com/tenauth/go-identity-server/projects"
	"github.com/tenauth/go-identity-server/tenants"
)

var _ projects.Repo = (*FakeProjectRepo)(nil)

type identityKey struct {
	projectID    string
	identityType tenants.IdentityType
	identity     string
}

// FakeProjectRepo is an in-memory projects.Repo for tests and standalone runs.
type FakeProjectRepo struct {
	mu         sync.RWMutex
	projects   map[string]*projects.Project
	users      map[string]*projects.User
	usernames  map[string]string // projectID+"/"+username -> userID
	identities map[identityKey]*projects.UserIdentity
}

func NewFakeProjectRepo() *FakeProjectRepo {
	return &FakeProjectRepo{
		projects:   make(map[string]*projects.Project),
		users:      make(map[string]*projects.User),
		usernames:  make(map[string]string),
		identities: make(map[identityKey]*projects.UserIdentity),
	}
}

func (r *FakeProjectRepo) CreateProject(_ context.Context, project *projects.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *project
	r.projects[project.ID] = &cp
	return nil
}

func (r *FakeProjectRepo) GetProject(_ context.Context, id string) (*projects.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	project, ok := r.projects[id]
	if !ok {
		return nil, projects.ErrProjectNotFound
	}
	cp := *project
	return &cp, nil
}

func (r *FakeProjectRepo) CreateUser(_ context.Context, user *projects.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[user.ProjectID]; !ok {
		return projects.ErrProjectNotFound
	}
	usernameKey := user.ProjectID + "/" + user.Username
	if _, ok := r.usernames[usernameKey]; ok {
		return projects.ErrUsernameTaken
	}
	cp := *user
	r.users[user.ID] = &cp
	r.usernames[usernameKey] = user.ID
	return nil
}

func (r *FakeProjectRepo) GetUser(_ context.Context, id string) (*projects.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, projects.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *FakeProjectRepo) AddUserIdentity(_ context.Context, identity *projects.UserIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[identity.UserID]; !ok {
		return projects.ErrUserNotFound
	}
	key := identityKey{identity.ProjectID, identity.IdentityType, identity.Identity}
	if _, ok := r.identities[key]; ok {
		return projects.ErrIdentityTaken
	}
	cp := *identity
	r.identities[key] = &cp
	return nil
}
