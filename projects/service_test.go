package projects_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenauth/go-identity-server/notifier"
	"github.com/tenauth/go-identity-server/otp/storefakes"
	"github.com/tenauth/go-identity-server/projects"
	"github.com/tenauth/go-identity-server/projects/repofakes"
	"github.com/tenauth/go-identity-server/tenants"
)

const (
	testTenantID = "tenant-1"
	testEmail    = "user@x.com"
)

type testFixture struct {
	repo     *repofakes.FakeProjectRepo
	otpStore *storefakes.FakeOtpStore
	service  *projects.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	repo := repofakes.NewFakeProjectRepo()
	otpStore := storefakes.NewFakeOtpStore()

	service, err := projects.New(projects.Deps{
		Repo:     repo,
		OtpStore: otpStore,
		Notifier: notifier.NewLogNotifier(zerolog.Nop()),
	})
	require.NoError(t, err)

	return &testFixture{repo: repo, otpStore: otpStore, service: service}
}

func (f *testFixture) createProjectAndUser(t *testing.T) (*projects.Project, *projects.User) {
	t.Helper()
	ctx := context.Background()

	project, err := f.service.CreateProject(ctx, testTenantID, "mobile-app")
	require.NoError(t, err)

	user, err := f.service.CreateUser(ctx, testTenantID, project.ID, "enduser", "pw123")
	require.NoError(t, err)
	return project, user
}

func TestCreateProject(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	project, err := f.service.CreateProject(ctx, testTenantID, "mobile-app")
	require.NoError(t, err)
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, testTenantID, project.TenantID)

	fetched, err := f.service.Project(ctx, testTenantID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "mobile-app", fetched.Name)
}

func TestProjectOwnershipEnforced(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	project, err := f.service.CreateProject(ctx, testTenantID, "mobile-app")
	require.NoError(t, err)

	_, err = f.service.Project(ctx, "someone-else", project.ID)
	assert.ErrorIs(t, err, projects.ErrWrongTenant)

	_, err = f.service.CreateUser(ctx, "someone-else", project.ID, "enduser", "pw123")
	assert.ErrorIs(t, err, projects.ErrWrongTenant)
}

func TestCreateUser(t *testing.T) {
	f := setupTestFixture(t)
	_, user := f.createProjectAndUser(t)

	assert.NotEmpty(t, user.ID)
	assert.True(t, tenants.CheckPasswordHash("pw123", user.PasswordHash))
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	f := setupTestFixture(t)
	project, _ := f.createProjectAndUser(t)

	_, err := f.service.CreateUser(context.Background(), testTenantID, project.ID, "enduser", "other")
	assert.ErrorIs(t, err, projects.ErrUsernameTaken)
}

func TestCreateUserWithoutPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	project, err := f.service.CreateProject(ctx, testTenantID, "mobile-app")
	require.NoError(t, err)

	user, err := f.service.CreateUser(ctx, testTenantID, project.ID, "passwordless", "")
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)
}

func TestAddIdentityFlow(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	project, user := f.createProjectAndUser(t)

	verificationToken, err := f.service.StartAddIdentity(ctx, testTenantID, project.ID, user.ID, tenants.IdentityTypeEmail, testEmail)
	require.NoError(t, err)

	record, err := f.otpStore.Get(ctx, verificationToken)
	require.NoError(t, err)
	assert.Equal(t, projects.Context, record.Context)

	require.NoError(t, f.service.CompleteAddIdentity(ctx, verificationToken, record.Code))

	// The token is single use.
	err = f.service.CompleteAddIdentity(ctx, verificationToken, record.Code)
	assert.ErrorIs(t, err, projects.ErrInvalidToken)
}

func TestAddIdentityRejectsNonEmail(t *testing.T) {
	f := setupTestFixture(t)
	project, user := f.createProjectAndUser(t)

	_, err := f.service.StartAddIdentity(context.Background(), testTenantID, project.ID, user.ID, tenants.IdentityTypeUsername, "enduser")
	assert.ErrorIs(t, err, projects.ErrUnsupportedIdentityType)
}

func TestAddIdentityUnknownUser(t *testing.T) {
	f := setupTestFixture(t)
	project, _ := f.createProjectAndUser(t)

	_, err := f.service.StartAddIdentity(context.Background(), testTenantID, project.ID, "never-existed", tenants.IdentityTypeEmail, testEmail)
	assert.ErrorIs(t, err, projects.ErrUserNotFound)
}

func TestCompleteAddIdentityWrongCode(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	project, user := f.createProjectAndUser(t)

	verificationToken, err := f.service.StartAddIdentity(ctx, testTenantID, project.ID, user.ID, tenants.IdentityTypeEmail, testEmail)
	require.NoError(t, err)

	record, err := f.otpStore.Get(ctx, verificationToken)
	require.NoError(t, err)

	wrong := "0000"
	if wrong == record.Code {
		wrong = "0001"
	}
	err = f.service.CompleteAddIdentity(ctx, verificationToken, wrong)
	assert.ErrorIs(t, err, projects.ErrInvalidOtp)

	// Still completable with the right code.
	require.NoError(t, f.service.CompleteAddIdentity(ctx, verificationToken, record.Code))
}

func TestCompleteAddIdentityDuplicateIdentity(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	project, user := f.createProjectAndUser(t)

	first, err := f.service.StartAddIdentity(ctx, testTenantID, project.ID, user.ID, tenants.IdentityTypeEmail, testEmail)
	require.NoError(t, err)
	record, err := f.otpStore.Get(ctx, first)
	require.NoError(t, err)
	require.NoError(t, f.service.CompleteAddIdentity(ctx, first, record.Code))

	second, err := f.service.StartAddIdentity(ctx, testTenantID, project.ID, user.ID, tenants.IdentityTypeEmail, testEmail)
	require.NoError(t, err)
	record, err = f.otpStore.Get(ctx, second)
	require.NoError(t, err)

	err = f.service.CompleteAddIdentity(ctx, second, record.Code)
	assert.ErrorIs(t, err, projects.ErrIdentityTaken)
}
