package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tenauth/go-identity-server/internal/metrics"
	"github.com/tenauth/go-identity-server/tenants"
)

type contextKey string

const tenantContextKey contextKey = "tenant"

// TenantFromContext returns the tenant attached by an auth middleware, or
// nil when the request was not authenticated.
func TenantFromContext(ctx context.Context) *tenants.Tenant {
	tenant, _ := ctx.Value(tenantContextKey).(*tenants.Tenant)
	return tenant
}

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the baseline chain for unauthenticated JSON endpoints.
func (s *Server) APIMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
	}
}

// BearerMiddleware is APIMiddleware plus access-token authentication.
func (s *Server) BearerMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return append(s.APIMiddleware(), s.RequireBearerToken)
}

// APIKeyMiddleware is APIMiddleware plus API-key authentication.
func (s *Server) APIKeyMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return append(s.APIMiddleware(), s.RequireAPIKey)
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(recorder, r)

		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(recorder.status), duration)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", duration).
			Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next(w, r)
	}
}

// RequireBearerToken authenticates the request with an access token and
// attaches the resolved tenant to the context.
func (s *Server) RequireBearerToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		tenant, err := s.auth.TenantByAccessToken(r.Context(), rawToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), tenantContextKey, tenant)))
	}
}

// RequireAPIKey authenticates the request with the API-Tenant header and
// attaches the owning tenant to the context.
func (s *Server) RequireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPITenant)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		tenant, err := s.auth.TenantByAPIKey(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), tenantContextKey, tenant)))
	}
}
