// Package identity defines the capability the session subsystem consumes from
// an identity provider: popup-style OAuth sign-in and linking, password
// flows, sign-out, session observation and identity-assertion tokens.
package identity

import (
	"context"
	"slices"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
)

// Strategy names the authentication mechanism of a request
type Strategy string

const (
	StrategyGithub   Strategy = "github"
	StrategyPassword Strategy = "password"
)

// PromptPolicy controls whether the provider may reuse a cached provider
// session
type PromptPolicy string

// PromptSelectAccount always shows the provider's account picker
const PromptSelectAccount PromptPolicy = "select_account"

// ScopeRepo grants repository read access on GitHub
const ScopeRepo = "repo"

// LinkRequest describes one sign-in or linking attempt. Target nil means a
// fresh sign-in, otherwise the credential is attached to Target.
type LinkRequest struct {
	Strategy        Strategy
	Target          *sessions.Session
	RequestedScopes []string
	PromptPolicy    PromptPolicy
}

// NewGithubRequest builds the request used by every GitHub attempt. The
// repo scope is always requested; extra scopes are added after it.
func NewGithubRequest(target *sessions.Session, extraScopes ...string) LinkRequest {
	scopes := []string{ScopeRepo}
	for _, s := range extraScopes {
		if s != "" && !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}
	return LinkRequest{
		Strategy:        StrategyGithub,
		Target:          target.Clone(),
		RequestedScopes: scopes,
		PromptPolicy:    PromptSelectAccount,
	}
}

// IsLink reports whether the request attaches to an existing session
func (r LinkRequest) IsLink() bool {
	return r.Target != nil
}

// Validate checks the request invariants
func (r LinkRequest) Validate() error {
	if r.Strategy != StrategyGithub {
		return errors.Wrapf(errors.ErrInvalidRequest, "unsupported strategy %q", r.Strategy)
	}
	if !slices.Contains(r.RequestedScopes, ScopeRepo) {
		return errors.Wrapf(errors.ErrInvalidRequest, "scope %q is required", ScopeRepo)
	}
	if r.PromptPolicy != PromptSelectAccount {
		return errors.Wrapf(errors.ErrInvalidRequest, "prompt policy must be %q", PromptSelectAccount)
	}
	return nil
}

// Outcome of a provider round-trip that did not fail
type Outcome int

const (
	OutcomeWithToken Outcome = iota
	OutcomeWithoutToken
)

func (o Outcome) String() string {
	if o == OutcomeWithToken {
		return "with_token"
	}
	return "without_token"
}

// CredentialResult is the output of one successful provider round-trip.
// ProviderAccessToken is nil when the provider did not return a usable token.
type CredentialResult struct {
	Session                *sessions.Session
	ProviderAccessToken    *string
	IdentityAssertionToken string
}

// Outcome classifies the result
func (r *CredentialResult) Outcome() Outcome {
	if r == nil || r.ProviderAccessToken == nil || *r.ProviderAccessToken == "" {
		return OutcomeWithoutToken
	}
	return OutcomeWithToken
}

// Provider is the identity provider client. Authenticate and Link block
// until the popup resolves; the only cancellation path is the user
// dismissing the popup, surfaced as errors.ErrProviderDenied.
type Provider interface {
	sessions.Source

	// Authenticate signs in with a fresh credential (req.Target == nil)
	Authenticate(ctx context.Context, req LinkRequest) (*CredentialResult, error)

	// Link attaches a credential to req.Target. A credential bound to another
	// identity fails with errors.ErrCredentialConflict.
	Link(ctx context.Context, req LinkRequest) (*CredentialResult, error)

	// SignInWithPassword and RegisterWithPassword fail with an
	// *errors.RejectionError for rejected credentials
	SignInWithPassword(ctx context.Context, email, password string) (*sessions.Session, error)
	RegisterWithPassword(ctx context.Context, email, password string) (*sessions.Session, error)

	SignOut(ctx context.Context) error

	// IDToken returns an identity-assertion token for session, refreshing it
	// when it is close to expiry
	IDToken(ctx context.Context, session *sessions.Session) (string, error)
}
