package localidp

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/agentify-session/identity"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// CompletePopup hands the provider redirect for state to the waiting attempt
func (p *Provider) CompletePopup(state string, result PopupResult) error {
	return p.popups.Resolve(state, result)
}

// Authenticate signs in with GitHub. An unknown GitHub user gets a new
// account.
func (p *Provider) Authenticate(ctx context.Context, req identity.LinkRequest) (*identity.CredentialResult, error) {
	if req.IsLink() {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "[Authenticate] sign-in request has a target")
	}
	grant, err := p.runPopup(ctx, req)
	if err != nil {
		return nil, err
	}

	account, err := p.users.GetByProviderLink(sessions.ProviderGithub, grant.Profile.ProviderUserID)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		account, err = p.newGithubAccount(grant.Profile)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errors.Wrapf(err, "[Authenticate] failed to look up account")
	default:
		account.LastLogin = p.nowTime()
		if err := p.users.Upsert(account); err != nil {
			return nil, errors.Wrapf(err, "[Authenticate] failed to update account")
		}
	}

	session, err := p.startSession(account)
	if err != nil {
		return nil, err
	}
	return p.credentialResult(ctx, session, grant), nil
}

// Link attaches the GitHub account chosen in the popup to req.Target
func (p *Provider) Link(ctx context.Context, req identity.LinkRequest) (*identity.CredentialResult, error) {
	if !req.IsLink() {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "[Link] link request has no target")
	}
	if err := p.checkTarget(req.Target); err != nil {
		return nil, err
	}

	grant, err := p.runPopup(ctx, req)
	if err != nil {
		return nil, err
	}

	// The user may have signed out while the popup was open
	if err := p.checkTarget(req.Target); err != nil {
		return nil, err
	}

	targetID := req.Target.Identity.ID
	owner, err := p.users.GetByProviderLink(sessions.ProviderGithub, grant.Profile.ProviderUserID)
	if err == nil && owner.ID != targetID {
		log.Warn().Str("uid", targetID).Str("owner", owner.ID).Msg("github account already linked elsewhere")
		return nil, errors.ErrCredentialConflict
	}
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrapf(err, "[Link] failed to look up link")
	}

	account, err := p.users.GetByID(targetID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Link] failed to load account")
	}
	if existing, ok := account.Link(sessions.ProviderGithub); ok && existing.ProviderUserID != grant.Profile.ProviderUserID {
		log.Info().Str("uid", targetID).Str("previous", existing.Login).Msg("replacing linked github account")
	}
	account.SetLink(users.ProviderLink{
		Provider:       sessions.ProviderGithub,
		ProviderUserID: grant.Profile.ProviderUserID,
		Login:          grant.Profile.Login,
		LinkedAt:       p.nowTime(),
	})
	if account.AvatarURL == "" {
		account.AvatarURL = grant.Profile.AvatarURL
	}
	if account.DisplayName == "" {
		account.DisplayName = displayName(grant.Profile)
	}
	if err := p.users.Upsert(account); err != nil {
		return nil, errors.Wrapf(err, "[Link] failed to update account")
	}

	current := p.Current()
	session := sessions.New(account.Identity(), account.Providers(), current.IssuedAt, current.ExpiresAt)
	if err := p.commit(session); err != nil {
		return nil, err
	}
	return p.credentialResult(ctx, session, grant), nil
}

func (p *Provider) checkTarget(target *sessions.Session) error {
	current := p.Current()
	if current == nil {
		return errors.ErrNoSession
	}
	if current.Identity.ID != target.Identity.ID {
		return errors.ErrSessionMismatch
	}
	return nil
}

// runPopup performs the single-shot popup round-trip and exchanges the code
func (p *Provider) runPopup(ctx context.Context, req identity.LinkRequest) (*GithubGrant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if p.github == nil {
		return nil, errors.New("github sign-in is not configured")
	}

	state := uuid.New().String()
	verifier := oauth2.GenerateVerifier()
	results, err := p.popups.Open(state)
	if err != nil {
		return nil, err
	}
	defer p.popups.Cancel(state)

	authURL := p.github.AuthCodeURL(state, verifier, req.RequestedScopes, req.PromptPolicy)
	if err := p.opener.Open(authURL); err != nil {
		return nil, errors.Wrapf(errors.ErrProviderDenied, "popup could not be opened: %v", err)
	}

	// an open popup outlives the caller's context
	popupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.popupTimeout)
	defer cancel()
	defer context.AfterFunc(p.lifetime, cancel)()

	result, err := wait(popupCtx, results)
	if err != nil {
		return nil, err
	}

	grant, err := p.github.Exchange(popupCtx, result.Code, verifier)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (p *Provider) newGithubAccount(profile GithubProfile) (*users.Account, error) {
	email := ""
	if profile.Email != "" {
		normalized, err := users.NormalizeEmail(profile.Email)
		if err == nil {
			email = normalized
		}
	}
	if email != "" {
		if _, err := p.users.GetByEmail(email); err == nil {
			// One account per email; the owner signs in and links GitHub instead
			return nil, errors.Wrapf(errors.ErrCredentialConflict, "email %s belongs to another account", email)
		}
	}

	now := p.nowTime()
	account := &users.Account{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName(profile),
		AvatarURL:   profile.AvatarURL,
		DateJoined:  now,
		LastLogin:   now,
	}
	account.SetLink(users.ProviderLink{
		Provider:       sessions.ProviderGithub,
		ProviderUserID: profile.ProviderUserID,
		Login:          profile.Login,
		LinkedAt:       now,
	})
	if err := p.users.Upsert(account); err != nil {
		return nil, errors.Wrapf(err, "[newGithubAccount] failed to create account")
	}
	return account, nil
}

// credentialResult only requires repo; other requested scopes are optional
func (p *Provider) credentialResult(ctx context.Context, session *sessions.Session, grant *GithubGrant) *identity.CredentialResult {
	token := grant.UsableToken([]string{identity.ScopeRepo})
	if token == nil {
		log.Warn().
			Str("uid", session.Identity.ID).
			Str("granted", strings.Join(grant.GrantedScopes, ",")).
			Msg("github did not grant a usable access token")
	}
	return &identity.CredentialResult{
		Session:                session.Clone(),
		ProviderAccessToken:    token,
		IdentityAssertionToken: p.assertionFor(ctx, session),
	}
}

func displayName(profile GithubProfile) string {
	if profile.Name != "" {
		return profile.Name
	}
	return profile.Login
}
