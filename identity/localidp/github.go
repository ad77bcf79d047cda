package localidp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/jrsteele09/agentify-session/identity"
	"github.com/jrsteele09/agentify-session/internal/utils"
	"golang.org/x/oauth2"
	oauth2github "golang.org/x/oauth2/github"
)

const defaultGithubAPIURL = "https://api.github.com"

// GithubProfile is the normalized GitHub user
type GithubProfile struct {
	ProviderUserID string
	Login          string
	Name           string
	Email          string
	AvatarURL      string
}

// GithubGrant is the outcome of exchanging a GitHub authorization code
type GithubGrant struct {
	AccessToken   string
	GrantedScopes []string
	Profile       GithubProfile
}

// UsableToken returns the access token if it carries every required scope.
// GitHub lets the user untick scopes on the consent page.
func (g *GithubGrant) UsableToken(required []string) *string {
	if g == nil {
		return nil
	}
	if g.GrantedScopes != nil {
		for _, s := range required {
			if !slices.Contains(g.GrantedScopes, s) {
				return nil
			}
		}
	}
	return utils.NonZero(g.AccessToken)
}

// GithubClient hides the OAuth protocol details of GitHub
type GithubClient interface {
	AuthCodeURL(state, verifier string, scopes []string, prompt identity.PromptPolicy) string
	Exchange(ctx context.Context, code, verifier string) (*GithubGrant, error)
}

// OAuthGithubClient talks to github.com with golang.org/x/oauth2
type OAuthGithubClient struct {
	config *oauth2.Config
	apiURL string
}

var _ GithubClient = (*OAuthGithubClient)(nil)

// NewOAuthGithubClient builds a client for the given OAuth app
func NewOAuthGithubClient(clientID, clientSecret, redirectURL string) *OAuthGithubClient {
	return &OAuthGithubClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2github.Endpoint,
			RedirectURL:  redirectURL,
		},
		apiURL: defaultGithubAPIURL,
	}
}

// WithEndpoints points the client at another GitHub host (GHES or a test server)
func (c *OAuthGithubClient) WithEndpoints(endpoint oauth2.Endpoint, apiURL string) *OAuthGithubClient {
	c.config.Endpoint = endpoint
	c.apiURL = strings.TrimSuffix(apiURL, "/")
	return c
}

func (c *OAuthGithubClient) AuthCodeURL(state, verifier string, scopes []string, prompt identity.PromptPolicy) string {
	cfg := *c.config
	cfg.Scopes = scopes
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", string(prompt)))
	}
	return cfg.AuthCodeURL(state, opts...)
}

func (c *OAuthGithubClient) Exchange(ctx context.Context, code, verifier string) (*GithubGrant, error) {
	tok, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("[OAuthGithubClient Exchange] token exchange failed: %w", err)
	}

	profile, err := c.fetchProfile(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("[OAuthGithubClient Exchange] %w", err)
	}

	return &GithubGrant{
		AccessToken:   tok.AccessToken,
		GrantedScopes: grantedScopes(tok),
		Profile:       profile,
	}, nil
}

func (c *OAuthGithubClient) fetchProfile(ctx context.Context, tok *oauth2.Token) (GithubProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/user", nil)
	if err != nil {
		return GithubProfile{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.config.Client(ctx, tok).Do(req)
	if err != nil {
		return GithubProfile{}, fmt.Errorf("failed to fetch github profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GithubProfile{}, fmt.Errorf("failed to fetch github profile: status %d", resp.StatusCode)
	}

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return GithubProfile{}, fmt.Errorf("failed to decode github profile: %w", err)
	}
	if user.ID == 0 {
		return GithubProfile{}, fmt.Errorf("github profile has no id")
	}

	return GithubProfile{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Login:          user.Login,
		Name:           user.Name,
		Email:          user.Email,
		AvatarURL:      user.AvatarURL,
	}, nil
}

// grantedScopes reads GitHub's comma separated "scope" field. nil means the
// response did not say.
func grantedScopes(tok *oauth2.Token) []string {
	raw, ok := tok.Extra("scope").(string)
	if !ok {
		return nil
	}
	scopes := []string{}
	for _, s := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		scopes = append(scopes, strings.TrimSpace(s))
	}
	return scopes
}
