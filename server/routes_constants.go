package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Signup routes
	RouteSignup       = "/api/v1/signup"
	RouteSignupVerify = "/api/v1/signup/verify"

	// Session routes
	RouteSignInPassword     = "/api/v1/sign-in/password"
	RouteRefreshToken       = "/api/v1/refresh-token"
	RouteRevokeRefreshToken = "/api/v1/revoke-refresh-token"

	// API key routes (bearer-token protected)
	RouteAPIKey = "/api/v1/api-key"

	// Project routes (API-key protected)
	RouteProjects                = "/api/v1/projects"
	RouteProjectUsers            = "/api/v1/projects/{projectID}/users"
	RouteProjectUserIdentities   = "/api/v1/projects/{projectID}/users/{userID}/identities"
	RouteProjectIdentitiesVerify = "/api/v1/projects/identities/verify"

	// Operational routes
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"
)

// Header names used by the API.
const (
	HeaderSignupToken = "Signup-Token"
	HeaderAPITenant   = "API-Tenant"
)
