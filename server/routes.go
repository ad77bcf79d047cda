package server

import (
	"net/http"

	"github.com/jrsteele09/agentify-session/guard"
	"github.com/jrsteele09/agentify-session/internal/metrics"
)

func (s *Server) initRoutes() {
	// SESSION
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthToken, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("GET "+RouteAuthEvents, s.EventsHandler())
	s.RegisterRouteHandler("POST "+RouteAuthSignOut, ChainMiddleware(s.SignOutHandler(), s.APIMiddleware()...))

	// GITHUB
	s.RegisterRouteHandler("POST "+RouteGithubSignIn, ChainMiddleware(s.GithubSignInHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteGithubLink, ChainMiddleware(s.GithubLinkHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteGithubPopupCallback, ChainMiddleware(s.GithubPopupCallbackHandler(), s.HTMLMiddleWare()...))

	// EMAIL
	s.RegisterRouteHandler("POST "+RouteEmailSignIn, ChainMiddleware(s.EmailSignInHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteEmailRegister, ChainMiddleware(s.EmailRegisterHandler(), s.APIMiddleware()...))

	// REDIRECT COMPLETION
	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.AuthCallbackHandler(), s.HTMLMiddleWare()...))

	// PROTECTED
	s.RegisterRouteHandler("GET "+RouteSettings, ChainMiddleware(s.SettingsHandler(), s.APIMiddleware(s.RequireSession())...))
	if s.backendProxy != nil {
		s.RegisterRouteHandler(RouteAPI, ChainMiddleware(s.backendProxy.ServeHTTP, s.APIMiddleware(s.RequireSession())...))
	}

	// OPERATIONAL
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMetrics, metrics.Handler())
	s.RegisterRouteFunc("GET "+RouteHealthz, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
}

// RequireSession gates a protected route on the session state
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	gate := guard.Middleware(s.store, http.HandlerFunc(loadingHandler), redirectSuccess)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return gate(next).ServeHTTP
	}
}

// loadingHandler is served while the session state is not known yet
func loadingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "loading"})
}
