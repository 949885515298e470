package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/tenauth/go-identity-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory sessions.Repo. The single mutex makes
// Delete an atomic claim, matching the contract the Manager relies on for
// rotation.
type FakeSessionRepo struct {
	byID map[string]*sessions.Session
	lock sync.Mutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{byID: make(map[string]*sessions.Session)}
}

func (r *FakeSessionRepo) Create(_ context.Context, session *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *session
	r.byID[session.ID] = &copied
	return nil
}

func (r *FakeSessionRepo) Get(_ context.Context, id string) (*sessions.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	session, ok := r.byID[id]
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *FakeSessionRepo) Delete(_ context.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.byID[id]; !ok {
		return sessions.ErrSessionNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *FakeSessionRepo) DeleteExpired(_ context.Context, tenantID string, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, session := range r.byID {
		if session.TenantID == tenantID && session.Expired(now) {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *FakeSessionRepo) CountLive(_ context.Context, tenantID string, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	count := 0
	for _, session := range r.byID {
		if session.TenantID == tenantID && !session.Expired(now) {
			count++
		}
	}
	return count, nil
}
