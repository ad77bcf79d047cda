package main

import (
	"fmt"
	"path/filepath"

	"github.com/jrsteele09/agentify-session/backend"
	"github.com/jrsteele09/agentify-session/callback"
	"github.com/jrsteele09/agentify-session/guard"
	"github.com/jrsteele09/agentify-session/identity/localidp"
	"github.com/jrsteele09/agentify-session/internal/config"
	"github.com/jrsteele09/agentify-session/internal/metrics"
	"github.com/jrsteele09/agentify-session/linking"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/jrsteele09/agentify-session/server"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/storage/boltstore"
	"github.com/jrsteele09/agentify-session/token"
	"github.com/jrsteele09/agentify-session/token/keys"
	"github.com/rs/zerolog/log"
)

const (
	databaseFile   = "agentify.db"
	signingKeyFile = "assertion_signing_key.pem"
	signingKeyID   = "agentify-assertion"
)

// app owns every long-lived component; Close releases them in reverse order
type app struct {
	server   *server.Server
	provider *localidp.Provider
	closers []func()
	// interrupters end long-running requests so the HTTP server can drain
	interrupters []func()
}

func (a *app) interrupt() {
	for _, fn := range a.interrupters {
		fn()
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func newApp(c config.Config) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	db, err := boltstore.Open(filepath.Join(c.GetDataFolder(), databaseFile))
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = db.Close() })

	keyPair, err := keys.LoadOrCreateKeyPair(signingKeyID, filepath.Join(c.GetDataFolder(), signingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("[newApp] signing key: %w", err)
	}
	assertions, err := localidp.NewAssertions(keys.NewKeyPairSigner(keyPair), c.GetAssertionIssuer(), c.GetAssertionAudience(), c.GetAssertionExpiry())
	if err != nil {
		return nil, err
	}

	var persistence localidp.SessionPersistence = db.Sessions()
	if c.GetSessionPersistence() == config.PersistenceMemory {
		persistence = localidp.NewMemoryPersistence()
	}

	var github localidp.GithubClient
	if c.GetGithubClientID() != "" {
		github = localidp.NewOAuthGithubClient(c.GetGithubClientID(), c.GetGithubClientSecret(), c.GetGithubRedirectURI())
	} else {
		log.Warn().Msg("GITHUB_CLIENT_ID is not set, GitHub sign-in is disabled")
	}

	var opener localidp.Opener = localidp.LogOpener{}
	if c.GetOpenBrowser() {
		opener = localidp.BrowserOpener{}
	}

	provider, err := localidp.New(localidp.Deps{
		Users:       db,
		Persistence: persistence,
		Github:      github,
		Opener:      opener,
		Assertions:  assertions,
	},
		localidp.WithPopupTimeout(c.GetPopupTimeout()),
		localidp.WithMaxSessionAge(c.GetMaxSessionAge()),
		localidp.WithRefreshMargin(c.GetAssertionRefreshMargin()),
		localidp.WithMinPasswordEntropy(c.GetMinPasswordEntropy()),
	)
	if err != nil {
		return nil, err
	}
	stopSweep, err := provider.StartExpirySweep(c.GetExpirySweepSpec())
	if err != nil {
		return nil, err
	}
	a.onClose(stopSweep)
	a.onClose(provider.Close)
	a.provider = provider
	a.interrupters = append(a.interrupters, provider.Close)

	store := sessions.NewStore(provider)
	store.SubscribeToProvider()
	a.onClose(store.Close)
	a.onClose(store.Watch(func(s sessions.State) {
		metrics.UpdateSessionState(s.Ready, s.Authenticated())
	}))

	hub := navigation.NewHub()
	a.interrupters = append(a.interrupters, hub.Close)
	navigator := navigation.NewDispatcher(hub)

	routeGuard := guard.New(store, navigator)
	routeGuard.Start()
	a.onClose(routeGuard.Stop)

	backendClient := backend.NewClient(c.GetBackendURL())
	controller, err := linking.NewController(provider, store, backendClient, navigator, linking.WithGithubScopes(c.GetGithubScopes()))
	if err != nil {
		return nil, err
	}

	accessor := token.NewAccessor(store, provider)
	proxy, err := backend.NewProxy(c.GetBackendURL(), server.RouteAPI, &token.Transport{Accessor: accessor})
	if err != nil {
		return nil, err
	}

	s, err := server.New(c, server.Deps{
		Store:        store,
		Controller:   controller,
		Accessor:     accessor,
		Provider:     provider,
		Completer:    callback.NewCompleter(backendClient, db, navigator),
		Hub:          hub,
		BackendProxy: proxy,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(s.Close)
	a.server = s

	ready = true
	return a, nil
}
