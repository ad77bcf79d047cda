package sessions_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/stretchr/testify/require"
)

func TestSession_Providers(t *testing.T) {
	s := newSession("u1", sessions.ProviderGithub, "", sessions.ProviderPassword, sessions.ProviderGithub)
	require.Equal(t, []sessions.ProviderID{sessions.ProviderGithub, sessions.ProviderPassword}, s.LinkedProviders)
	require.True(t, s.HasProvider(sessions.ProviderPassword))

	var none *sessions.Session
	require.False(t, none.HasProvider(sessions.ProviderGithub))
}

func TestSession_WithProviderLeavesOriginal(t *testing.T) {
	s := newSession("u1", sessions.ProviderPassword)
	linked := s.WithProvider(sessions.ProviderGithub)

	require.False(t, s.HasProvider(sessions.ProviderGithub))
	require.True(t, linked.HasProvider(sessions.ProviderGithub))
	require.False(t, s.Equal(linked))
	require.True(t, linked.Equal(linked.Clone()))
}

func TestSession_IsExpired(t *testing.T) {
	s := newSession("u1")
	require.False(t, s.IsExpired(s.IssuedAt))
	require.True(t, s.IsExpired(s.ExpiresAt))
	require.True(t, s.IsExpired(s.ExpiresAt.Add(time.Second)))

	forever := sessions.New(sessions.Identity{ID: "u2"}, nil, time.Now(), time.Time{})
	require.False(t, forever.IsExpired(time.Now().Add(24*time.Hour)))
}
