package server

import (
	"encoding/json"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"github.com/tenauth/go-identity-server/auth"
	"github.com/tenauth/go-identity-server/projects"
	"github.com/tenauth/go-identity-server/sessions"
	"github.com/tenauth/go-identity-server/signup"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps domain sentinels onto HTTP statuses. Anything
// unmapped is an internal error and the logger gets the detail; the client
// does not.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case pkgerrors.Is(err, signup.ErrUnsupportedIdentityType):
		writeError(w, http.StatusBadRequest, "unsupported identity type")
	case pkgerrors.Is(err, signup.ErrIdentityAlreadyRegistered):
		writeError(w, http.StatusConflict, "identity already registered")
	case pkgerrors.Is(err, signup.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username taken")
	case pkgerrors.Is(err, signup.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid signup token")
	case pkgerrors.Is(err, signup.ErrInvalidOtp):
		writeError(w, http.StatusUnauthorized, "invalid otp")
	case pkgerrors.Is(err, signup.ErrInvalidContext), pkgerrors.Is(err, signup.ErrCorruptMetadata):
		writeError(w, http.StatusUnauthorized, "invalid signup token")
	case pkgerrors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case pkgerrors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case pkgerrors.Is(err, sessions.ErrSessionLimitExceeded):
		writeError(w, http.StatusConflict, "session limit exceeded")
	case pkgerrors.Is(err, sessions.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	case pkgerrors.Is(err, projects.ErrUnsupportedIdentityType):
		writeError(w, http.StatusBadRequest, "unsupported identity type")
	case pkgerrors.Is(err, projects.ErrProjectNotFound), pkgerrors.Is(err, projects.ErrWrongTenant):
		writeError(w, http.StatusNotFound, "project not found")
	case pkgerrors.Is(err, projects.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "project user not found")
	case pkgerrors.Is(err, projects.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username taken")
	case pkgerrors.Is(err, projects.ErrIdentityTaken):
		writeError(w, http.StatusConflict, "identity taken")
	case pkgerrors.Is(err, projects.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid verification token")
	case pkgerrors.Is(err, projects.ErrInvalidOtp):
		writeError(w, http.StatusUnauthorized, "invalid otp")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
