// Package localidp is the identity provider the dashboard companion ships
// with. It signs users in with GitHub through a popup-style OAuth round-trip
// or with an email and password, and keeps exactly one current session.
package localidp

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/agentify-session/identity"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/token/keys"
	"github.com/jrsteele09/agentify-session/users"
	"github.com/rs/zerolog/log"
)

const (
	defaultPopupTimeout    = 5 * time.Minute
	defaultMaxSessionAge   = 30 * 24 * time.Hour
	defaultRefreshMargin   = 5 * time.Minute
	defaultMinPasswordBits = 0
)

// Deps are the collaborators of a Provider. Github may be nil when no OAuth
// app is configured; GitHub attempts then fail.
type Deps struct {
	Users       users.Repo
	Persistence SessionPersistence
	Github      GithubClient
	Opener      Opener
	Assertions  *Assertions
}

type cachedAssertion struct {
	token     string
	expiresAt time.Time
}

// Provider implements identity.Provider
type Provider struct {
	users       users.Repo
	persistence SessionPersistence
	github      GithubClient
	opener      Opener
	assertions  *Assertions
	popups      *PopupBroker

	// lifetime ends open popups when the provider is closed
	lifetime context.Context
	shutdown context.CancelFunc

	nowTime         func() time.Time
	popupTimeout    time.Duration
	maxSessionAge   time.Duration
	refreshMargin   time.Duration
	minPasswordBits float64

	// emitMu orders commits and observer deliveries
	emitMu       sync.Mutex
	mu           sync.Mutex
	current      *sessions.Session
	observers    map[int]func(*sessions.Session)
	nextObserver int
	assertion    *cachedAssertion
}

var _ identity.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithNowTime(nowTime func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowTime
	}
}

func WithPopupTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.popupTimeout = d
	}
}

func WithMaxSessionAge(d time.Duration) Option {
	return func(p *Provider) {
		p.maxSessionAge = d
	}
}

func WithRefreshMargin(d time.Duration) Option {
	return func(p *Provider) {
		p.refreshMargin = d
	}
}

func WithMinPasswordEntropy(bits float64) Option {
	return func(p *Provider) {
		p.minPasswordBits = bits
	}
}

func WithPopupBroker(b *PopupBroker) Option {
	return func(p *Provider) {
		p.popups = b
	}
}

// New creates the provider and restores a persisted, unexpired session
func New(deps Deps, options ...Option) (*Provider, error) {
	if deps.Users == nil {
		return nil, errors.New("[localidp New] user repository is required")
	}
	if deps.Persistence == nil {
		return nil, errors.New("[localidp New] session persistence is required")
	}
	if deps.Assertions == nil {
		return nil, errors.New("[localidp New] assertion issuer is required")
	}
	if deps.Opener == nil {
		deps.Opener = LogOpener{}
	}

	p := &Provider{
		users:           deps.Users,
		persistence:     deps.Persistence,
		github:          deps.Github,
		opener:          deps.Opener,
		assertions:      deps.Assertions,
		popups:          NewPopupBroker(),
		nowTime:         time.Now,
		popupTimeout:    defaultPopupTimeout,
		maxSessionAge:   defaultMaxSessionAge,
		refreshMargin:   defaultRefreshMargin,
		minPasswordBits: defaultMinPasswordBits,
		observers:       make(map[int]func(*sessions.Session)),
	}
	for _, o := range options {
		o(p)
	}

	if err := p.restore(); err != nil {
		return nil, err
	}
	p.lifetime, p.shutdown = context.WithCancel(context.Background())
	return p, nil
}

// Close ends every popup still waiting for the user. Callers of
// Authenticate and Link see ErrProviderDenied.
func (p *Provider) Close() {
	p.shutdown()
}

func (p *Provider) restore() error {
	stored, err := p.persistence.Load()
	if err != nil {
		return errors.Wrapf(err, "[localidp restore] failed to load session")
	}
	if stored == nil {
		return nil
	}
	if stored.IsExpired(p.nowTime()) {
		log.Info().Str("uid", stored.Identity.ID).Msg("discarding expired session")
		return p.persistence.Clear()
	}
	p.current = stored
	return nil
}

// Popups exposes the broker the redirect handler resolves
func (p *Provider) Popups() *PopupBroker {
	return p.popups
}

// Observe delivers the current session immediately, then every change
func (p *Provider) Observe(fn func(*sessions.Session)) func() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	id := p.nextObserver
	p.nextObserver++
	p.observers[id] = fn
	current := p.current.Clone()
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// Current returns a copy of the provider's session
func (p *Provider) Current() *sessions.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Clone()
}

// commit persists session as the current one and notifies observers.
// Nothing is published when persisting fails.
func (p *Provider) commit(session *sessions.Session) error {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	return p.commitLocked(session)
}

func (p *Provider) commitLocked(session *sessions.Session) error {
	var err error
	if session == nil {
		err = p.persistence.Clear()
	} else {
		err = p.persistence.Save(session)
	}
	if err != nil {
		return errors.Wrapf(err, "[localidp commit] failed to persist session")
	}

	p.mu.Lock()
	p.current = session.Clone()
	p.assertion = nil
	observers := make([]func(*sessions.Session), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	for _, fn := range observers {
		fn(session.Clone())
	}
	return nil
}

func (p *Provider) startSession(account *users.Account) (*sessions.Session, error) {
	now := p.nowTime()
	session := sessions.New(account.Identity(), account.Providers(), now, now.Add(p.maxSessionAge))
	if err := p.commit(session); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// SignOut ends the current session
func (p *Provider) SignOut(_ context.Context) error {
	return p.commit(nil)
}

// ExpireIfDue ends the current session once it is past its expiry. It
// reports whether a session was ended.
func (p *Provider) ExpireIfDue() bool {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil || !current.IsExpired(p.nowTime()) {
		return false
	}
	if err := p.commitLocked(nil); err != nil {
		log.Err(err).Str("uid", current.Identity.ID).Msg("failed to expire session")
		return false
	}
	log.Info().Str("uid", current.Identity.ID).Msg("session expired")
	return true
}

// IDToken returns the cached assertion for session or mints a new one when
// the cached one is within the refresh margin of expiry
func (p *Provider) IDToken(_ context.Context, session *sessions.Session) (string, error) {
	if session == nil {
		return "", errors.ErrNoSession
	}
	now := p.nowTime()

	p.mu.Lock()
	current := p.current
	if current == nil || current.Identity.ID != session.Identity.ID {
		p.mu.Unlock()
		return "", errors.ErrNoSession
	}
	if current.IsExpired(now) {
		p.mu.Unlock()
		p.ExpireIfDue()
		return "", errors.ErrSessionExpired
	}
	defer p.mu.Unlock()

	if p.assertion != nil && now.Add(p.refreshMargin).Before(p.assertion.expiresAt) {
		return p.assertion.token, nil
	}

	token, expiresAt, err := p.assertions.Issue(current, now)
	if err != nil {
		return "", err
	}
	p.assertion = &cachedAssertion{token: token, expiresAt: expiresAt}
	return token, nil
}

// VerifyAssertion checks a token minted by this provider
func (p *Provider) VerifyAssertion(ctx context.Context, raw string) (*AssertionClaims, error) {
	return p.assertions.Verify(ctx, raw)
}

func (p *Provider) assertionFor(ctx context.Context, session *sessions.Session) string {
	token, err := p.IDToken(ctx, session)
	if err != nil {
		log.Err(err).Str("uid", session.Identity.ID).Msg("failed to mint identity assertion")
		return ""
	}
	return token
}

// JWKS publishes the key that verifies identity assertions
func (p *Provider) JWKS() (*keys.JWKS, error) {
	return p.assertions.JWKS()
}
