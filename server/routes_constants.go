package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Session contract
	RouteAuthSession = "/auth/session"
	RouteAuthToken   = "/auth/token"
	RouteAuthMe      = "/auth/me"
	RouteAuthEvents  = "/auth/events"
	RouteAuthSignOut = "/auth/signout"

	// GitHub popup flows
	RouteGithubSignIn        = "/auth/github/signin"
	RouteGithubLink          = "/auth/github/link"
	RouteGithubPopupCallback = "/auth/github/popup/callback"

	// Email flows
	RouteEmailSignIn   = "/auth/email/signin"
	RouteEmailRegister = "/auth/email/register"

	// Authorization-code redirect completion
	RouteAuthCallback = "/auth/callback"

	// Protected surfaces
	RouteSettings = "/settings"
	RouteAPI      = "/api/"

	// Operational
	RouteWellKnownJWKS = "/.well-known/jwks.json"
	RouteMetrics       = "/metrics"
	RouteHealthz       = "/healthz"
)
