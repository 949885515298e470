package server

import (
	"encoding/json"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"github.com/tenauth/go-identity-server/internal/metrics"
	"github.com/tenauth/go-identity-server/sessions"
	"github.com/tenauth/go-identity-server/tenants"
)

type signupStartRequest struct {
	IdentityType string `json:"identity_type"`
	Identity     string `json:"identity"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type signupStartResponse struct {
	SignupToken string `json:"signup_token"`
}

// SignupStartHandler begins an OTP-gated signup. No tenant exists until the
// code is verified.
func (s *Server) SignupStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Identity == "" || req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "identity, username and password are required")
			return
		}

		signupToken, err := s.signup.Start(r.Context(), tenants.IdentityType(req.IdentityType), req.Identity, req.Username, req.Password)
		if err != nil {
			metrics.ObserveSignupStart("failure")
			s.writeServiceError(w, err)
			return
		}

		metrics.ObserveSignupStart("success")
		writeJSON(w, http.StatusAccepted, signupStartResponse{SignupToken: signupToken})
	}
}

type signupVerifyRequest struct {
	Otp string `json:"otp"`
}

// SignupVerifyHandler completes a signup. The signup token travels in the
// Signup-Token header; the code in the body.
func (s *Server) SignupVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signupToken := r.Header.Get(HeaderSignupToken)
		if signupToken == "" {
			writeError(w, http.StatusBadRequest, "missing Signup-Token header")
			return
		}

		var req signupVerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := s.signup.Complete(r.Context(), signupToken, req.Otp); err != nil {
			metrics.ObserveSignupComplete("failure")
			s.writeServiceError(w, err)
			return
		}

		metrics.ObserveSignupComplete("success")
		w.WriteHeader(http.StatusNoContent)
	}
}

type signInRequest struct {
	IdentityType string `json:"identity_type"`
	Identity     string `json:"identity"`
	Password     string `json:"password"`
}

// SignInPasswordHandler exchanges a password credential for a token pair.
func (s *Server) SignInPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		identityType := tenants.IdentityType(req.IdentityType)
		if identityType == "" {
			identityType = tenants.IdentityTypeEmail
		}

		pair, err := s.auth.SignInWithPassword(r.Context(), identityType, req.Identity, req.Password)
		if err != nil {
			if pkgerrors.Is(err, sessions.ErrSessionLimitExceeded) {
				metrics.ObserveSessionLimitHit()
			}
			s.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, pair)
	}
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokenHandler rotates a refresh token and mints a fresh access token.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refresh_token is required")
			return
		}

		pair, err := s.auth.RefreshToken(r.Context(), req.RefreshToken)
		if err != nil {
			metrics.ObserveTokenRotation("failure")
			s.writeServiceError(w, err)
			return
		}

		metrics.ObserveTokenRotation("success")
		writeJSON(w, http.StatusOK, pair)
	}
}

// RevokeRefreshTokenHandler deletes the session behind a refresh token.
// Revoking an unknown token succeeds.
func (s *Server) RevokeRefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refresh_token is required")
			return
		}

		if err := s.auth.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
			s.writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type apiKeyResponse struct {
	APIKey string `json:"api_key"`
}

// GenerateAPIKeyHandler issues a new opaque API key for the authenticated
// tenant.
func (s *Server) GenerateAPIKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := TenantFromContext(r.Context())
		if tenant == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		key, err := s.auth.GenerateAPIKey(r.Context(), tenant.ID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, apiKeyResponse{APIKey: key})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
