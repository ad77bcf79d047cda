package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/agentify-session/callback"
	"github.com/jrsteele09/agentify-session/identity/localidp"
	"github.com/jrsteele09/agentify-session/internal/config"
	"github.com/jrsteele09/agentify-session/linking"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/token"
	"github.com/jrsteele09/agentify-session/token/keys"
	"github.com/rs/zerolog/log"
)

// IdentityProvider is what the HTTP surface needs from the provider beyond
// the linking controller
type IdentityProvider interface {
	CompletePopup(state string, result localidp.PopupResult) error
	VerifyAssertion(ctx context.Context, raw string) (*localidp.AssertionClaims, error)
	JWKS() (*keys.JWKS, error)
}

// Deps are the components served over HTTP
type Deps struct {
	Store      *sessions.Store
	Controller *linking.Controller
	Accessor   *token.Accessor
	Provider   IdentityProvider
	Completer  *callback.Completer
	Hub        *navigation.Hub
	// BackendProxy serves /api/; nil leaves the route unregistered
	BackendProxy http.Handler
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	handler http.Handler
	routes  []string
	config  config.Config

	store        *sessions.Store
	controller   *linking.Controller
	accessor     *token.Accessor
	provider     IdentityProvider
	completer    *callback.Completer
	hub          *navigation.Hub
	backendProxy http.Handler

	stopWatch func()
}

func New(config config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Controller == nil || deps.Accessor == nil {
		return nil, fmt.Errorf("[Server New] store, controller and accessor are required")
	}
	if deps.Provider == nil || deps.Completer == nil || deps.Hub == nil {
		return nil, fmt.Errorf("[Server New] provider, completer and hub are required")
	}

	s := &Server{
		mux:          http.NewServeMux(),
		config:       config,
		store:        deps.Store,
		controller:   deps.Controller,
		accessor:     deps.Accessor,
		provider:     deps.Provider,
		completer:    deps.Completer,
		hub:          deps.Hub,
		backendProxy: deps.BackendProxy,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()
	s.handler = s.globalMiddleware(s.mux)

	// Push every session change to connected browsers
	s.stopWatch = s.store.Watch(func(state sessions.State) {
		s.hub.Broadcast(navigation.Event{Type: navigation.EventSession, Data: newSessionResponse(state)})
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops pushing session changes
func (s *Server) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
	}
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", paintMethod(method), path)
}
