// Package token hands out identity-assertion tokens for the current session
package token

import (
	"context"
	"net/http"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
)

// SessionReader reads the current session state
type SessionReader interface {
	GetSession() sessions.State
}

// Issuer mints assertions for a session, refreshing near expiry
type Issuer interface {
	IDToken(ctx context.Context, session *sessions.Session) (string, error)
}

// Accessor returns a fresh assertion for whoever is signed in. Results are
// not cached here; the issuer owns rotation.
type Accessor struct {
	store  SessionReader
	issuer Issuer
}

func NewAccessor(store SessionReader, issuer Issuer) *Accessor {
	return &Accessor{
		store:  store,
		issuer: issuer,
	}
}

// GetToken returns nil, nil when nobody is signed in
func (a *Accessor) GetToken(ctx context.Context) (*string, error) {
	session := a.store.GetSession().Session
	if session == nil {
		return nil, nil
	}
	tok, err := a.issuer.IDToken(ctx, session)
	if err != nil {
		return nil, errors.Wrapf(err, "[GetToken] uid %s", session.Identity.ID)
	}
	return &tok, nil
}

// Transport stamps each outgoing request with a bearer assertion obtained
// just for that request
type Transport struct {
	Accessor *Accessor
	Base     http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Accessor.GetToken(req.Context())
	if err == nil && tok == nil {
		err = errors.ErrNoSession
	}
	if err != nil {
		// RoundTrip owns the body even when the request is never sent
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+*tok)
	return t.base().RoundTrip(r)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
