package server

import (
	"encoding/json"
	"net/http"

	"github.com/tenauth/go-identity-server/tenants"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

// CreateProjectHandler creates a project owned by the API-key tenant.
func (s *Server) CreateProjectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := TenantFromContext(r.Context())
		if tenant == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		project, err := s.projects.CreateProject(r.Context(), tenant.ID, req.Name)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, project)
	}
}

type createProjectUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateProjectUserHandler adds an end user to a project.
func (s *Server) CreateProjectUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := TenantFromContext(r.Context())
		if tenant == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var req createProjectUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeError(w, http.StatusBadRequest, "username is required")
			return
		}

		user, err := s.projects.CreateUser(r.Context(), tenant.ID, r.PathValue("projectID"), req.Username, req.Password)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

type startAddIdentityRequest struct {
	IdentityType string `json:"identity_type"`
	Identity     string `json:"identity"`
}

type startAddIdentityResponse struct {
	VerificationToken string `json:"verification_token"`
}

// StartAddIdentityHandler issues an OTP to the identity being claimed for a
// project user.
func (s *Server) StartAddIdentityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := TenantFromContext(r.Context())
		if tenant == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var req startAddIdentityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identity == "" {
			writeError(w, http.StatusBadRequest, "identity is required")
			return
		}

		verificationToken, err := s.projects.StartAddIdentity(r.Context(), tenant.ID,
			r.PathValue("projectID"), r.PathValue("userID"),
			tenants.IdentityType(req.IdentityType), req.Identity)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, startAddIdentityResponse{VerificationToken: verificationToken})
	}
}

type completeAddIdentityRequest struct {
	VerificationToken string `json:"verification_token"`
	Otp               string `json:"otp"`
}

// CompleteAddIdentityHandler consumes a verification token and binds the
// identity to its project user.
func (s *Server) CompleteAddIdentityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req completeAddIdentityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VerificationToken == "" {
			writeError(w, http.StatusBadRequest, "verification_token is required")
			return
		}

		if err := s.projects.CompleteAddIdentity(r.Context(), req.VerificationToken, req.Otp); err != nil {
			s.writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
