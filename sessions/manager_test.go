package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenauth/go-identity-server/sessions"
	"github.com/tenauth/go-identity-server/sessions/repofakes"
)

func newManager(t *testing.T, options ...sessions.ManagerOption) *sessions.Manager {
	t.Helper()
	m, err := sessions.NewManager(repofakes.NewFakeSessionRepo(), options...)
	require.NoError(t, err)
	return m
}

func TestCreateSetsThirtyDayExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newManager(t, sessions.WithNowTime(func() time.Time { return now }))

	session, err := m.Create(context.Background(), "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, now, session.CreatedAt)
	assert.Equal(t, now.Add(30*24*time.Hour), session.ExpiresAt)
	assert.NotEmpty(t, session.ID)
}

func TestSessionCapIsHard(t *testing.T) {
	m := newManager(t, sessions.WithMaxSimultaneous(2))
	ctx := context.Background()

	first, err := m.Create(ctx, "t1", nil)
	require.NoError(t, err)
	_, err = m.Create(ctx, "t1", nil)
	require.NoError(t, err)

	_, err = m.Create(ctx, "t1", nil)
	assert.ErrorIs(t, err, sessions.ErrSessionLimitExceeded)

	// Another tenant is unaffected.
	_, err = m.Create(ctx, "t2", nil)
	require.NoError(t, err)

	// Revoking one frees a slot.
	require.NoError(t, m.Revoke(ctx, first.ID))
	_, err = m.Create(ctx, "t1", nil)
	require.NoError(t, err)
}

func TestExpiredSessionsAreSweptBeforeCapCheck(t *testing.T) {
	now := time.Now()
	current := now
	m := newManager(t,
		sessions.WithMaxSimultaneous(1),
		sessions.WithNowTime(func() time.Time { return current }),
	)
	ctx := context.Background()

	_, err := m.Create(ctx, "t1", nil)
	require.NoError(t, err)

	_, err = m.Create(ctx, "t1", nil)
	assert.ErrorIs(t, err, sessions.ErrSessionLimitExceeded)

	// Once the first session expires the slot opens up again.
	current = now.Add(30*24*time.Hour + time.Second)
	_, err = m.Create(ctx, "t1", nil)
	require.NoError(t, err)
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, "t1", map[string]string{"device": "cli"})
	require.NoError(t, err)

	second, err := m.Rotate(ctx, first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "t1", second.TenantID)
	assert.Equal(t, "cli", second.Metadata["device"])

	_, err = m.Rotate(ctx, first.ID)
	assert.ErrorIs(t, err, sessions.ErrInvalidRefreshToken)

	_, err = m.Rotate(ctx, second.ID)
	require.NoError(t, err)
}

func TestRotateExpiredSessionFailsAndCleansUp(t *testing.T) {
	now := time.Now()
	current := now
	repo := repofakes.NewFakeSessionRepo()
	m, err := sessions.NewManager(repo, sessions.WithNowTime(func() time.Time { return current }))
	require.NoError(t, err)
	ctx := context.Background()

	session, err := m.Create(ctx, "t1", nil)
	require.NoError(t, err)

	current = now.Add(31 * 24 * time.Hour)
	_, err = m.Rotate(ctx, session.ID)
	assert.ErrorIs(t, err, sessions.ErrInvalidRefreshToken)

	// The expired session was eagerly deleted.
	_, err = repo.Get(ctx, session.ID)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestConcurrentRotationHasExactlyOneWinner(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	session, err := m.Create(ctx, "t1", nil)
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Rotate(ctx, session.ID)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners, losers := 0, 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, sessions.ErrInvalidRefreshToken)
			losers++
		}
	}
	assert.Equal(t, 1, winners, "exactly one rotation must win")
	assert.Equal(t, callers-1, losers)
}

func TestRevokeIsIdempotent(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	session, err := m.Create(ctx, "t1", nil)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, session.ID))
	require.NoError(t, m.Revoke(ctx, session.ID))
	require.NoError(t, m.Revoke(ctx, "never-existed"))
}
