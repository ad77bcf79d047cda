package config

import "time"

type OAuthConfig interface {
	GetGithubClientID() string
	GetGithubClientSecret() string
	GetGithubRedirectURI() string
	GetGithubScopes() []string
	GetPopupTimeout() time.Duration
	GetOpenBrowser() bool
	GetAssertionIssuer() string
	GetAssertionAudience() string
	GetAssertionExpiry() time.Duration
	GetAssertionRefreshMargin() time.Duration
}

type OAuth struct {
	env EnvVars
}

var _ OAuthConfig = OAuth{}

// githubPopupCallbackPath must match server.RouteGithubPopupCallback
const githubPopupCallbackPath = "/auth/github/popup/callback"

func (o OAuth) GetGithubClientID() string {
	return o.env.GithubClientID
}

func (o OAuth) GetGithubClientSecret() string {
	return o.env.GithubClientSecret
}

func (o OAuth) GetGithubRedirectURI() string {
	if o.env.GithubRedirectURI != "" {
		return o.env.GithubRedirectURI
	}
	return o.env.GetBaseURL() + githubPopupCallbackPath
}

// GetGithubScopes always contains "repo"; repository read access is required.
func (o OAuth) GetGithubScopes() []string {
	scopes := []string{"repo"}
	for _, s := range o.env.GithubScopes {
		if s != "" && s != "repo" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func (o OAuth) GetPopupTimeout() time.Duration {
	if o.env.PopupTimeout <= 0 {
		return 5 * time.Minute
	}
	return o.env.PopupTimeout
}

func (o OAuth) GetOpenBrowser() bool {
	return o.env.OpenBrowser
}

func (o OAuth) GetAssertionIssuer() string {
	return o.env.GetBaseURL()
}

func (o OAuth) GetAssertionAudience() string {
	return "agentify-backend"
}

func (OAuth) GetAssertionExpiry() time.Duration {
	return 1 * time.Hour
}

func (OAuth) GetAssertionRefreshMargin() time.Duration {
	return 5 * time.Minute
}
