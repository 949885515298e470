package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenauth/go-identity-server/auth"
	"github.com/tenauth/go-identity-server/internal/config"
	"github.com/tenauth/go-identity-server/notifier"
	"github.com/tenauth/go-identity-server/otp/storefakes"
	"github.com/tenauth/go-identity-server/projects"
	projectrepofakes "github.com/tenauth/go-identity-server/projects/repofakes"
	"github.com/tenauth/go-identity-server/secrets"
	"github.com/tenauth/go-identity-server/server"
	"github.com/tenauth/go-identity-server/sessions"
	sessionrepofakes "github.com/tenauth/go-identity-server/sessions/repofakes"
	"github.com/tenauth/go-identity-server/signup"
	tenantrepofakes "github.com/tenauth/go-identity-server/tenants/repofakes"
	"github.com/tenauth/go-identity-server/token"
)

type testFixture struct {
	otpStore *storefakes.FakeOtpStore
	server   *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	sessionRepo := sessionrepofakes.NewFakeSessionRepo()
	otpStore := storefakes.NewFakeOtpStore()
	projectRepo := projectrepofakes.NewFakeProjectRepo()

	cipher, err := secrets.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	signupService, err := signup.New(signup.Deps{
		Tenants:  tenantRepo,
		OtpStore: otpStore,
		Notifier: notifier.NewLogNotifier(zerolog.Nop()),
		Cipher:   cipher,
	})
	require.NoError(t, err)

	sessionMgr, err := sessions.NewManager(sessionRepo)
	require.NoError(t, err)

	minter, err := token.NewMinter([]byte("test-secret"), "TENANT_IDENTITY", time.Hour)
	require.NoError(t, err)

	authService, err := auth.New(auth.Deps{Tenants: tenantRepo, Sessions: sessionMgr, Minter: minter})
	require.NoError(t, err)

	projectService, err := projects.New(projects.Deps{
		Repo:     projectRepo,
		OtpStore: otpStore,
		Notifier: notifier.NewLogNotifier(zerolog.Nop()),
	})
	require.NoError(t, err)

	srv, err := server.New(&config.Config{Env: "TEST"}, server.Deps{
		Signup:   signupService,
		Auth:     authService,
		Projects: projectService,
	}, zerolog.Nop())
	require.NoError(t, err)

	return &testFixture{otpStore: otpStore, server: srv}
}

func (f *testFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

// signupTenant drives the full signup flow and returns nothing; the tenant
// is usable via sign-in afterwards.
func (f *testFixture) signupTenant(t *testing.T, email, username, password string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, server.RouteSignup, map[string]string{
		"identity_type": "EMAIL",
		"identity":      email,
		"username":      username,
		"password":      password,
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var startResp struct {
		SignupToken string `json:"signup_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &startResp))

	record, err := f.otpStore.Get(context.Background(), startResp.SignupToken)
	require.NoError(t, err)

	rec = f.do(t, http.MethodPut, server.RouteSignupVerify,
		map[string]string{"otp": record.Code},
		map[string]string{server.HeaderSignupToken: startResp.SignupToken})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func (f *testFixture) signIn(t *testing.T, email, password string) *auth.TokenPair {
	t.Helper()

	rec := f.do(t, http.MethodPost, server.RouteSignInPassword, map[string]string{
		"identity_type": "EMAIL",
		"identity":      email,
		"password":      password,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	pair := &auth.TokenPair{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), pair))
	return pair
}

func TestSignupFlow(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")

	pair := f.signIn(t, "a@x.com", "pw123")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestSignupDuplicateIdentityConflicts(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")

	rec := f.do(t, http.MethodPost, server.RouteSignup, map[string]string{
		"identity_type": "EMAIL",
		"identity":      "a@x.com",
		"username":      "bob",
		"password":      "pw123",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignupVerifyWrongOtp(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteSignup, map[string]string{
		"identity_type": "EMAIL",
		"identity":      "a@x.com",
		"username":      "alice",
		"password":      "pw123",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var startResp struct {
		SignupToken string `json:"signup_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &startResp))

	record, err := f.otpStore.Get(context.Background(), startResp.SignupToken)
	require.NoError(t, err)
	wrong := "0000"
	if wrong == record.Code {
		wrong = "0001"
	}

	rec = f.do(t, http.MethodPut, server.RouteSignupVerify,
		map[string]string{"otp": wrong},
		map[string]string{server.HeaderSignupToken: startResp.SignupToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignInWrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")

	rec := f.do(t, http.MethodPost, server.RouteSignInPassword, map[string]string{
		"identity_type": "EMAIL",
		"identity":      "a@x.com",
		"password":      "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")
	pair := f.signIn(t, "a@x.com", "pw123")

	rec := f.do(t, http.MethodPut, server.RouteRefreshToken,
		map[string]string{"refresh_token": pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rotated auth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old token is gone.
	rec = f.do(t, http.MethodPut, server.RouteRefreshToken,
		map[string]string{"refresh_token": pair.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")
	pair := f.signIn(t, "a@x.com", "pw123")

	rec := f.do(t, http.MethodDelete, server.RouteRevokeRefreshToken,
		map[string]string{"refresh_token": pair.RefreshToken}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Idempotent.
	rec = f.do(t, http.MethodDelete, server.RouteRevokeRefreshToken,
		map[string]string{"refresh_token": pair.RefreshToken}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPut, server.RouteRefreshToken,
		map[string]string{"refresh_token": pair.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionLimitReturnsConflict(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")

	for i := 0; i < 5; i++ {
		f.signIn(t, "a@x.com", "pw123")
	}

	rec := f.do(t, http.MethodPost, server.RouteSignInPassword, map[string]string{
		"identity_type": "EMAIL",
		"identity":      "a@x.com",
		"password":      "pw123",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPIKeyRequiresBearerToken(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteAPIKey, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, server.RouteAPIKey, nil,
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyIssuanceAndProjectAccess(t *testing.T) {
	f := setupTestFixture(t)
	f.signupTenant(t, "a@x.com", "alice", "pw123")
	pair := f.signIn(t, "a@x.com", "pw123")

	rec := f.do(t, http.MethodPost, server.RouteAPIKey, nil,
		map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var keyResp struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keyResp))
	require.NotEmpty(t, keyResp.APIKey)

	// Project creation requires the key.
	rec = f.do(t, http.MethodPost, server.RouteProjects,
		map[string]string{"name": "mobile-app"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, server.RouteProjects,
		map[string]string{"name": "mobile-app"},
		map[string]string{server.HeaderAPITenant: keyResp.APIKey})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var project projects.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	assert.Equal(t, "mobile-app", project.Name)
}

func TestHealthz(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, server.RouteHealthz, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
