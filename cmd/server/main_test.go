package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/agentify-session/internal/config"
	"github.com/jrsteele09/agentify-session/server"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*app, string, *http.Server) {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("FOLDER", t.TempDir())
	t.Setenv("OPEN_BROWSER", "false")
	t.Setenv("SESSION_PERSISTENCE", "memory")
	t.Setenv("GITHUB_CLIENT_ID", "test-client")
	t.Setenv("GITHUB_CLIENT_SECRET", "test-secret")

	c, err := config.New()
	require.NoError(t, err)
	a, err := newApp(c)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newHTTPServer(listener.Addr().String(), a)
	go func() { _ = srv.Serve(listener) }()
	return a, "http://" + listener.Addr().String(), srv
}

func TestShutdown_EndsLongRunningRequests(t *testing.T) {
	a, baseURL, srv := setupTestApp(t)

	events, err := http.Get(baseURL + server.RouteAuthEvents)
	require.NoError(t, err)
	defer events.Body.Close()
	line, err := bufio.NewReader(events.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "event: session"), line)

	signIn := make(chan int, 1)
	go func() {
		resp, err := http.Post(baseURL+server.RouteGithubSignIn, "application/json", nil)
		if err != nil {
			signIn <- 0
			return
		}
		_ = resp.Body.Close()
		signIn <- resp.StatusCode
	}()
	require.Eventually(t, func() bool { return a.provider.Popups().Pending() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, shutdown(srv))
	require.Less(t, time.Since(start), shutdownTimeout)
	require.Equal(t, http.StatusForbidden, <-signIn)
}

func TestShouldRestart(t *testing.T) {
	require.False(t, shouldRestart(nil))
	require.True(t, shouldRestart(errors.New("server.ListenAndServe address in use")))
	require.True(t, shouldRestart(errors.New("panic recovered")))

	// a shutdown that could not drain is final
	stopErr := fmt.Errorf("%w: server.Shutdown: %w", errStopped, context.DeadlineExceeded)
	require.False(t, shouldRestart(stopErr))
}
