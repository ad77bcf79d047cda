package localidp

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/token/keys"
)

// AssertionClaims are the claims of an identity-assertion token
type AssertionClaims struct {
	Subject   string   `json:"sub"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Picture   string   `json:"picture,omitempty"`
	Providers []string `json:"providers"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// Assertions mints and verifies identity-assertion tokens
type Assertions struct {
	signer   *keys.KeyPairSigner
	issuer   string
	audience string
	expiry   time.Duration
	verifier *oidc.IDTokenVerifier
}

// NewAssertions creates an issuer whose tokens are verifiable against the
// signer's public key
func NewAssertions(signer *keys.KeyPairSigner, issuer, audience string, expiry time.Duration) (*Assertions, error) {
	if signer == nil {
		return nil, errors.New("[NewAssertions] signer is required")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("[NewAssertions] issuer and audience are required")
	}
	if expiry <= 0 {
		return nil, errors.New("[NewAssertions] expiry must be positive")
	}

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{signer.PublicKey()}}
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{
		ClientID:             audience,
		SupportedSigningAlgs: []string{oidc.RS256},
	})

	return &Assertions{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
		verifier: verifier,
	}, nil
}

// Issue mints a token for session, valid from now
func (a *Assertions) Issue(session *sessions.Session, now time.Time) (string, time.Time, error) {
	if session == nil {
		return "", time.Time{}, errors.ErrNoSession
	}

	expiresAt := now.Add(a.expiry)
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}

	providers := make([]string, 0, len(session.LinkedProviders))
	for _, p := range session.LinkedProviders {
		providers = append(providers, string(p))
	}

	claims := jwt.MapClaims{
		"iss":       a.issuer,
		"sub":       session.Identity.ID,
		"aud":       a.audience,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
		"jti":       uuid.New().String(),
		"providers": providers,
	}
	if session.Identity.Email != "" {
		claims["email"] = session.Identity.Email
	}
	if session.Identity.DisplayName != "" {
		claims["name"] = session.Identity.DisplayName
	}
	if session.Identity.AvatarURL != "" {
		claims["picture"] = session.Identity.AvatarURL
	}

	token, err := a.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("[Assertions Issue] %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks signature, issuer, audience and expiry of raw
func (a *Assertions) Verify(ctx context.Context, raw string) (*AssertionClaims, error) {
	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "%v", err)
	}

	var claims AssertionClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "claims: %v", err)
	}
	return &claims, nil
}

// JWKS publishes the verification key
func (a *Assertions) JWKS() (*keys.JWKS, error) {
	return a.signer.JWKS()
}
