// Package guard gates protected surfaces on session readiness
package guard

import (
	"context"
	"net/http"
	"sync"

	"github.com/jrsteele09/agentify-session/internal/metrics"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/rs/zerolog/log"
)

// Status of a protected surface
type Status int

const (
	Pending Status = iota
	Unauthenticated
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "pending"
	}
}

// Evaluate maps the session state onto a guard status. Nothing is decided
// before the state is ready.
func Evaluate(state sessions.State) Status {
	switch {
	case !state.Ready:
		return Pending
	case state.Session == nil:
		return Unauthenticated
	default:
		return Authenticated
	}
}

// Guard redirects to the public entry whenever the session state moves
// into Unauthenticated, including after the user was signed in
type Guard struct {
	store     *sessions.Store
	navigator navigation.Navigator

	mu      sync.Mutex
	last    Status
	cancel  func()
	started bool
	epoch   int
}

func New(store *sessions.Store, navigator navigation.Navigator) *Guard {
	return &Guard{
		store:     store,
		navigator: navigator,
		last:      Pending,
	}
}

// Start begins watching the store; calling it twice has no effect
func (g *Guard) Start() {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	// reserve the slot before Watch, which delivers the current state
	// through observe and so cannot run under mu
	g.started = true
	g.epoch++
	epoch := g.epoch
	g.mu.Unlock()

	cancel := g.store.Watch(g.observe)

	g.mu.Lock()
	if !g.started || g.epoch != epoch {
		// stopped while subscribing
		g.mu.Unlock()
		cancel()
		return
	}
	g.cancel = cancel
	g.mu.Unlock()
}

func (g *Guard) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.started = false
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Status returns the last evaluated status
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *Guard) observe(state sessions.State) {
	status := Evaluate(state)

	g.mu.Lock()
	previous := g.last
	g.last = status
	g.mu.Unlock()

	if status == Unauthenticated && previous != Unauthenticated {
		log.Info().Str("from", previous.String()).Msg("session lost, redirecting to public entry")
		metrics.AddGuardRedirect()
		g.navigator.Navigate(context.Background(), navigation.PublicEntry)
	}
}

// Middleware wraps a protected handler. While the state is pending it serves
// loading; when unauthenticated it redirects to the public entry.
func Middleware(store *sessions.Store, loading http.Handler, redirect func(w http.ResponseWriter, r *http.Request, path string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch Evaluate(store.GetSession()) {
			case Pending:
				loading.ServeHTTP(w, r)
			case Unauthenticated:
				redirect(w, r, navigation.PublicEntry)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
