// Package callback completes the authorization-code redirect: the code in
// the redirect URL is exchanged once and the user moves on.
package callback

import (
	"context"
	"net/url"
	"sync"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/internal/metrics"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/rs/zerolog/log"
)

// Status of a redirect completion
type Status string

const (
	Waiting   Status = "waiting"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Exchanger trades a single-use code for an access token
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// TokenStore keeps the exchanged access token
type TokenStore interface {
	SaveAccessToken(token string) error
}

// Completer exchanges each code at most once. A code seen before is never
// sent again; its page fails instead.
type Completer struct {
	exchanger Exchanger
	tokens    TokenStore
	navigator navigation.Navigator

	mu   sync.Mutex
	used map[string]struct{}
}

func NewCompleter(exchanger Exchanger, tokens TokenStore, navigator navigation.Navigator) *Completer {
	return &Completer{
		exchanger: exchanger,
		tokens:    tokens,
		navigator: navigator,
		used:      make(map[string]struct{}),
	}
}

// Complete handles the redirect query. Without a code it does nothing and
// reports Waiting.
func (c *Completer) Complete(ctx context.Context, query url.Values) (Status, error) {
	code := query.Get("code")
	if code == "" {
		return Waiting, nil
	}

	if !c.claim(code) {
		err := errors.Wrapf(errors.ErrExchangeFailure, "code already used")
		c.fail(ctx, err)
		return Failed, err
	}

	token, err := c.exchanger.ExchangeCode(ctx, code)
	metrics.AddCodeExchange(err == nil)
	if err != nil {
		c.fail(ctx, err)
		return Failed, err
	}
	if err := c.tokens.SaveAccessToken(token); err != nil {
		err = errors.Wrapf(err, "[Complete] failed to store access token")
		c.fail(ctx, err)
		return Failed, err
	}

	log.Info().Msg("authorization code exchanged")
	c.navigator.Navigate(ctx, navigation.Repos)
	return Completed, nil
}

func (c *Completer) claim(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.used[code]; ok {
		return false
	}
	c.used[code] = struct{}{}
	return true
}

func (c *Completer) fail(ctx context.Context, err error) {
	log.Err(err).Msg("authorization code redirect failed")
	c.navigator.Navigate(ctx, navigation.PublicEntry)
}
