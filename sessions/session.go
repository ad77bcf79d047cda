package sessions

import (
	"slices"
	"time"
)

// ProviderID identifies an authentication provider attached to an identity
type ProviderID string

const (
	ProviderPassword ProviderID = "password"
	ProviderGithub   ProviderID = "github"
)

// Identity is the opaque principal behind a session
type Identity struct {
	ID          string `json:"uid"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Session is an authenticated principal and its linked providers.
// A Session is never mutated once it has been published; updates produce a
// new value.
type Session struct {
	Identity        Identity     `json:"identity"`
	LinkedProviders []ProviderID `json:"linked_providers"`
	IssuedAt        time.Time    `json:"issued_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// New builds a session with a normalized provider set
func New(identity Identity, providers []ProviderID, issuedAt, expiresAt time.Time) *Session {
	return &Session{
		Identity:        identity,
		LinkedProviders: normalizeProviders(providers),
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
	}
}

// HasProvider reports whether p is linked
func (s *Session) HasProvider(p ProviderID) bool {
	if s == nil {
		return false
	}
	return slices.Contains(s.LinkedProviders, p)
}

// IsExpired reports whether the session is past its expiry at now
func (s *Session) IsExpired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy; nil stays nil
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.LinkedProviders = slices.Clone(s.LinkedProviders)
	return &c
}

// WithProvider returns a copy with p added to the provider set
func (s *Session) WithProvider(p ProviderID) *Session {
	c := s.Clone()
	c.LinkedProviders = normalizeProviders(append(c.LinkedProviders, p))
	return c
}

// Equal compares identity, providers and lifetime
func (s *Session) Equal(o *Session) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Identity == o.Identity &&
		slices.Equal(s.LinkedProviders, o.LinkedProviders) &&
		s.IssuedAt.Equal(o.IssuedAt) &&
		s.ExpiresAt.Equal(o.ExpiresAt)
}

func normalizeProviders(providers []ProviderID) []ProviderID {
	out := make([]ProviderID, 0, len(providers))
	for _, p := range providers {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
