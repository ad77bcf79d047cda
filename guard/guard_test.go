package guard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/agentify-session/guard"
	fakeprovider "github.com/jrsteele09/agentify-session/identity/providerfake"
	"github.com/jrsteele09/agentify-session/navigation"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/stretchr/testify/require"
)

type recordingNavigator struct {
	lock  sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.paths...)
}

func session(uid string) *sessions.Session {
	now := time.Now()
	return sessions.New(sessions.Identity{ID: uid}, []sessions.ProviderID{sessions.ProviderPassword}, now, now.Add(time.Hour))
}

func setupTestFixture(t *testing.T) (*sessions.Store, *fakeprovider.FakeProvider, *recordingNavigator, *guard.Guard) {
	t.Helper()
	provider := fakeprovider.NewFakeProvider()
	store := sessions.NewStore(provider)
	nav := &recordingNavigator{}
	g := guard.New(store, nav)
	t.Cleanup(func() {
		g.Stop()
		store.Close()
	})
	return store, provider, nav, g
}

func TestEvaluate(t *testing.T) {
	require.Equal(t, guard.Pending, guard.Evaluate(sessions.State{}))
	require.Equal(t, guard.Unauthenticated, guard.Evaluate(sessions.State{Ready: true}))
	require.Equal(t, guard.Authenticated, guard.Evaluate(sessions.State{Ready: true, Session: session("u1")}))
	require.Equal(t, "pending", guard.Pending.String())
}

func TestGuard(t *testing.T) {
	t.Run("pending decides nothing", func(t *testing.T) {
		_, _, nav, g := setupTestFixture(t)
		g.Start()
		require.Equal(t, guard.Pending, g.Status())
		require.Empty(t, nav.Paths())
	})

	t.Run("signed in never redirects", func(t *testing.T) {
		store, provider, nav, g := setupTestFixture(t)
		provider.Emit(session("u1"))
		g.Start()
		store.SubscribeToProvider()
		require.Equal(t, guard.Authenticated, g.Status())
		require.Empty(t, nav.Paths())
	})

	t.Run("redirects once per transition", func(t *testing.T) {
		store, provider, nav, g := setupTestFixture(t)
		g.Start()
		g.Start()
		store.SubscribeToProvider()
		require.Equal(t, guard.Unauthenticated, g.Status())
		require.Equal(t, []string{navigation.PublicEntry}, nav.Paths())

		// staying signed out does not redirect again
		provider.Emit(nil)
		require.Len(t, nav.Paths(), 1)

		provider.Emit(session("u1"))
		require.Equal(t, guard.Authenticated, g.Status())
		require.Len(t, nav.Paths(), 1)

		// losing the session later redirects again
		provider.Emit(nil)
		require.Equal(t, []string{navigation.PublicEntry, navigation.PublicEntry}, nav.Paths())
	})

	t.Run("stopped guard ignores changes", func(t *testing.T) {
		store, _, nav, g := setupTestFixture(t)
		g.Start()
		g.Stop()
		store.SubscribeToProvider()
		require.Empty(t, nav.Paths())
	})

	t.Run("concurrent starts keep one watcher", func(t *testing.T) {
		store, _, nav, g := setupTestFixture(t)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.Start()
			}()
		}
		wg.Wait()

		// a second watcher would survive Stop and still redirect
		g.Stop()
		store.SubscribeToProvider()
		require.Empty(t, nav.Paths())
	})
}

func TestMiddleware(t *testing.T) {
	store, provider, _, _ := setupTestFixture(t)

	loading := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	redirect := func(w http.ResponseWriter, r *http.Request, path string) {
		http.Redirect(w, r, path, http.StatusSeeOther)
	}
	protected := guard.Middleware(store, loading, redirect)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
		return rec
	}

	require.Equal(t, http.StatusAccepted, serve().Code)

	store.SubscribeToProvider()
	rec := serve()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, navigation.PublicEntry, rec.Header().Get("Location"))

	provider.Emit(session("u1"))
	require.Equal(t, http.StatusOK, serve().Code)
}
