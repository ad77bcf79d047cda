// Package linking drives sign-in, registration, GitHub linking and sign-out,
// and hands a freshly obtained GitHub token to the backend.
package linking

import (
	"context"

	"github.com/jrsteele09/agentify-session/identity"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/internal/metrics"
	"github.com/jrsteele09/agentify-session/internal/utils"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenSyncer forwards a GitHub access token to the backend
type TokenSyncer interface {
	SyncGithubToken(ctx context.Context, githubToken, assertion string) error
}

// Result of a flow that established or updated a session. Warning is set
// when the session is fine but the backend did not receive a token.
type Result struct {
	Session *sessions.Session
	Synced  bool
	Warning error
}

// Controller runs the identity-linking flows. Callers keep at most one
// GitHub attempt outstanding.
type Controller struct {
	provider  identity.Provider
	store     *sessions.Store
	syncer    TokenSyncer
	navigator navigation.Navigator
	logger    zerolog.Logger
	scopes    []string
}

type Option func(*Controller)

// WithGithubScopes requests scopes in addition to repo
func WithGithubScopes(scopes []string) Option {
	return func(c *Controller) {
		c.scopes = scopes
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(provider identity.Provider, store *sessions.Store, syncer TokenSyncer, navigator navigation.Navigator, options ...Option) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("[NewController] provider is required")
	}
	if store == nil {
		return nil, errors.New("[NewController] session store is required")
	}
	if syncer == nil {
		return nil, errors.New("[NewController] token syncer is required")
	}
	if navigator == nil {
		return nil, errors.New("[NewController] navigator is required")
	}

	c := &Controller{
		provider:  provider,
		store:     store,
		syncer:    syncer,
		navigator: navigator,
		logger:    log.Logger.With().Str("component", "linking").Logger(),
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// SignInWithGithub authenticates through the GitHub popup, then syncs the
// token. A sync problem leaves the session in place and comes back as
// Result.Warning.
func (c *Controller) SignInWithGithub(ctx context.Context) (*Result, error) {
	res, err := c.provider.Authenticate(ctx, identity.NewGithubRequest(nil, c.scopes...))
	if err != nil {
		c.recordFailure(FlowGithubSignIn, err)
		return nil, err
	}
	return c.syncCredential(ctx, FlowGithubSignIn, res), nil
}

// LinkGithubToExistingAccount attaches GitHub to the signed-in identity
func (c *Controller) LinkGithubToExistingAccount(ctx context.Context) (*Result, error) {
	current := c.store.GetSession().Session
	if current == nil {
		c.recordFailure(FlowGithubLink, errors.ErrNoSession)
		return nil, errors.ErrNoSession
	}
	generation := c.store.Generation()

	res, err := c.provider.Link(ctx, identity.NewGithubRequest(current, c.scopes...))
	if err != nil {
		c.recordFailure(FlowGithubLink, err)
		return nil, err
	}

	// Show the new provider now; the next provider event supersedes this
	if c.store.Refresh(generation, res.Session) {
		c.logger.Debug().Str("uid", current.Identity.ID).Msg("applied optimistic session refresh")
	}
	return c.syncCredential(ctx, FlowGithubLink, res), nil
}

func (c *Controller) SignInWithEmail(ctx context.Context, email, password string) (*Result, error) {
	session, err := c.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		c.recordFailure(FlowEmailSignIn, err)
		return nil, err
	}
	metrics.AddAuthAttempt(string(FlowEmailSignIn), metrics.OutcomeSuccess)
	return &Result{Session: session}, nil
}

func (c *Controller) RegisterWithEmail(ctx context.Context, email, password string) (*Result, error) {
	session, err := c.provider.RegisterWithPassword(ctx, email, password)
	if err != nil {
		c.recordFailure(FlowEmailRegister, err)
		return nil, err
	}
	metrics.AddAuthAttempt(string(FlowEmailRegister), metrics.OutcomeSuccess)
	return &Result{Session: session}, nil
}

// SignOut always navigates to the public entry, even when the provider
// fails to end its session. That error is still returned.
func (c *Controller) SignOut(ctx context.Context) error {
	err := c.provider.SignOut(ctx)
	if err != nil {
		c.recordFailure(FlowSignOut, err)
	} else {
		metrics.AddAuthAttempt(string(FlowSignOut), metrics.OutcomeSuccess)
	}
	c.navigator.Navigate(ctx, navigation.PublicEntry)
	return err
}

func (c *Controller) syncCredential(ctx context.Context, flow Flow, res *identity.CredentialResult) *Result {
	result := &Result{Session: res.Session}
	uid := ""
	if res.Session != nil {
		uid = res.Session.Identity.ID
	}

	if res.Outcome() == identity.OutcomeWithoutToken {
		c.logger.Warn().Str("uid", uid).Str("flow", string(flow)).Msg("provider returned no access token, skipping token sync")
		metrics.AddAuthAttempt(string(flow), metrics.OutcomeNoToken)
		result.Warning = errors.ErrMissingProviderToken
		return result
	}
	metrics.AddAuthAttempt(string(flow), metrics.OutcomeSuccess)

	assertion := res.IdentityAssertionToken
	if assertion == "" {
		tok, err := c.provider.IDToken(ctx, res.Session)
		if err != nil {
			c.logger.Err(err).Str("uid", uid).Msg("failed to get identity assertion for token sync")
			metrics.AddTokenSync(false)
			result.Warning = errors.Join(errors.ErrSyncFailure, err)
			return result
		}
		assertion = tok
	}

	err := c.syncer.SyncGithubToken(ctx, utils.Value(res.ProviderAccessToken), assertion)
	metrics.AddTokenSync(err == nil)
	if err != nil {
		c.logger.Err(err).Str("uid", uid).Msg("github token sync failed")
		if !errors.Is(err, errors.ErrSyncFailure) {
			err = errors.Join(errors.ErrSyncFailure, err)
		}
		result.Warning = err
		return result
	}
	result.Synced = true
	return result
}

func (c *Controller) recordFailure(flow Flow, err error) {
	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, errors.ErrProviderDenied):
		outcome = metrics.OutcomeDenied
	case errors.Is(err, errors.ErrCredentialConflict):
		outcome = metrics.OutcomeConflict
	case errors.Is(err, errors.ErrCredentialRejected):
		outcome = metrics.OutcomeRejected
	}
	metrics.AddAuthAttempt(string(flow), outcome)
	c.logger.Info().Err(err).Str("flow", string(flow)).Msg("authentication attempt failed")
}
