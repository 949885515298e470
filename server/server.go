// Package server exposes the identity engine over JSON HTTP.
package server

import (
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tenauth/go-identity-server/auth"
	"github.com/tenauth/go-identity-server/internal/config"
	"github.com/tenauth/go-identity-server/projects"
	"github.com/tenauth/go-identity-server/signup"
)

// Deps holds the orchestrators the server fronts.
type Deps struct {
	Signup   *signup.Orchestrator
	Auth     *auth.Service
	Projects *projects.Service
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config *config.Config
	logger zerolog.Logger

	signup   *signup.Orchestrator
	auth     *auth.Service
	projects *projects.Service
}

func New(cfg *config.Config, deps Deps, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, pkgerrors.New("[server.New] config is required")
	}
	if deps.Signup == nil || deps.Auth == nil || deps.Projects == nil {
		return nil, pkgerrors.New("[server.New] all service dependencies are required")
	}

	s := &Server{
		env:      cfg.Env,
		mux:      http.NewServeMux(),
		config:   cfg,
		logger:   logger,
		signup:   deps.Signup,
		auth:     deps.Auth,
		projects: deps.Projects,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	// Signup
	s.RegisterRouteHandler("POST "+RouteSignup, ChainMiddleware(s.SignupStartHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteSignupVerify, ChainMiddleware(s.SignupVerifyHandler(), s.APIMiddleware()...))

	// Sessions
	s.RegisterRouteHandler("POST "+RouteSignInPassword, ChainMiddleware(s.SignInPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteRefreshToken, ChainMiddleware(s.RefreshTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteRevokeRefreshToken, ChainMiddleware(s.RevokeRefreshTokenHandler(), s.APIMiddleware()...))

	// API keys require a valid bearer token
	s.RegisterRouteHandler("POST "+RouteAPIKey, ChainMiddleware(s.GenerateAPIKeyHandler(), s.BearerMiddleware()...))

	// Projects require a valid API key
	s.RegisterRouteHandler("POST "+RouteProjects, ChainMiddleware(s.CreateProjectHandler(), s.APIKeyMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteProjectUsers, ChainMiddleware(s.CreateProjectUserHandler(), s.APIKeyMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteProjectUserIdentities, ChainMiddleware(s.StartAddIdentityHandler(), s.APIKeyMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteProjectIdentitiesVerify, ChainMiddleware(s.CompleteAddIdentityHandler(), s.APIKeyMiddleware()...))

	// Operational
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		s.logger.Info().Str("route", route).Msg("registered")
	}
}
