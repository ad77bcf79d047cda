// Package backend talks to the Agentify analysis backend
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/agentify-session/internal/errors"
)

const (
	SyncPath     = "/auth/github/sync"
	ExchangePath = "/auth/github/exchange"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Client calls the backend's auth endpoints. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// BaseURL returns the backend base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

type syncRequest struct {
	GithubAccessToken string `json:"github_access_token"`
}

// SyncGithubToken hands the GitHub access token to the backend on behalf of
// the identity proven by assertion. Re-syncing the same token is safe.
func (c *Client) SyncGithubToken(ctx context.Context, githubToken, assertion string) error {
	if githubToken == "" {
		return errors.Wrapf(errors.ErrMissingProviderToken, "[SyncGithubToken]")
	}
	headers := map[string]string{"Authorization": "Bearer " + assertion}
	if err := c.post(ctx, SyncPath, syncRequest{GithubAccessToken: githubToken}, headers, nil); err != nil {
		return errors.Wrapf(errors.Join(errors.ErrSyncFailure, err), "[SyncGithubToken]")
	}
	return nil
}

type exchangeRequest struct {
	Code string `json:"code"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
}

// ExchangeCode trades a single-use authorization code for an access token
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	var resp exchangeResponse
	if err := c.post(ctx, ExchangePath, exchangeRequest{Code: code}, nil, &resp); err != nil {
		return "", errors.Wrapf(errors.Join(errors.ErrExchangeFailure, err), "[ExchangeCode]")
	}
	if resp.AccessToken == "" {
		return "", errors.Wrapf(errors.ErrExchangeFailure, "[ExchangeCode] response has no access_token")
	}
	return resp.AccessToken, nil
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Wrapf(errors.ErrBackendRejected, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
