package localidp_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/agentify-session/identity"
	"github.com/jrsteele09/agentify-session/identity/localidp"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/token/keys"
	"github.com/jrsteele09/agentify-session/users"
	fakeuserrepo "github.com/jrsteele09/agentify-session/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "http://localhost:8080"
	testAudience = "agentify-backend"
	testEmail    = "john.doe@example.com"
	testPassword = "password123"
)

var (
	signerOnce sync.Once
	testSigner *keys.KeyPairSigner
)

func signer(t *testing.T) *keys.KeyPairSigner {
	t.Helper()
	signerOnce.Do(func() {
		kp, err := keys.GenerateRSAKeyPair("test-key", 2048)
		require.NoError(t, err)
		testSigner = keys.NewKeyPairSigner(kp)
	})
	return testSigner
}

// fakeGithub completes every popup with popupResult and exchanges any code
// for grant
type fakeGithub struct {
	grant       *localidp.GithubGrant
	exchangeErr error
	authURLs    []string
}

func (g *fakeGithub) AuthCodeURL(state, _ string, scopes []string, prompt identity.PromptPolicy) string {
	u := "https://github.test/login/oauth/authorize?" + url.Values{
		"state":  {state},
		"scope":  scopes,
		"prompt": {string(prompt)},
	}.Encode()
	g.authURLs = append(g.authURLs, u)
	return u
}

func (g *fakeGithub) Exchange(_ context.Context, code, _ string) (*localidp.GithubGrant, error) {
	if g.exchangeErr != nil {
		return nil, g.exchangeErr
	}
	if code == "" {
		return nil, errors.New("no code")
	}
	return g.grant, nil
}

type testFixture struct {
	now         time.Time
	users       *fakeuserrepo.FakeUserRepo
	persistence *localidp.MemoryPersistence
	github      *fakeGithub
	popupResult *localidp.PopupResult
	openErr     error
	opened      chan string
	provider    *localidp.Provider
	emitted     []*sessions.Session
}

func setupTestFixture(t *testing.T, options ...localidp.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		now:         time.Now().Truncate(time.Second),
		users:       fakeuserrepo.NewFakeUserRepo(),
		persistence: localidp.NewMemoryPersistence(),
		github:      &fakeGithub{grant: githubGrant("42", "octocat", "", "repo")},
		popupResult: &localidp.PopupResult{Code: "code-1"},
	}

	assertions, err := localidp.NewAssertions(signer(t), testIssuer, testAudience, 10*time.Minute)
	require.NoError(t, err)

	opener := localidp.OpenerFunc(func(authURL string) error {
		if f.openErr != nil {
			return f.openErr
		}
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		state := u.Query().Get("state")
		if f.opened != nil {
			f.opened <- state
		}
		if f.popupResult == nil {
			return nil
		}
		return f.provider.CompletePopup(state, *f.popupResult)
	})

	options = append([]localidp.Option{localidp.WithNowTime(func() time.Time { return f.now })}, options...)
	p, err := localidp.New(localidp.Deps{
		Users:       f.users,
		Persistence: f.persistence,
		Github:      f.github,
		Opener:      opener,
		Assertions:  assertions,
	}, options...)
	require.NoError(t, err)
	f.provider = p

	cancel := p.Observe(func(s *sessions.Session) { f.emitted = append(f.emitted, s) })
	t.Cleanup(cancel)
	return f
}

func githubGrant(id, login, email string, scopes ...string) *localidp.GithubGrant {
	return &localidp.GithubGrant{
		AccessToken:   "gh-" + id,
		GrantedScopes: scopes,
		Profile: localidp.GithubProfile{
			ProviderUserID: id,
			Login:          login,
			Email:          email,
			AvatarURL:      "https://avatars.test/" + login,
		},
	}
}

func (f *testFixture) register(t *testing.T, email string) *sessions.Session {
	t.Helper()
	s, err := f.provider.RegisterWithPassword(context.Background(), email, testPassword)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	assertions, err := localidp.NewAssertions(signer(t), testIssuer, testAudience, time.Minute)
	require.NoError(t, err)

	_, err = localidp.New(localidp.Deps{Persistence: localidp.NewMemoryPersistence(), Assertions: assertions})
	require.Error(t, err)
	_, err = localidp.New(localidp.Deps{Users: fakeuserrepo.NewFakeUserRepo(), Assertions: assertions})
	require.Error(t, err)
	_, err = localidp.New(localidp.Deps{Users: fakeuserrepo.NewFakeUserRepo(), Persistence: localidp.NewMemoryPersistence()})
	require.Error(t, err)
}

func TestProvider_Observe(t *testing.T) {
	f := setupTestFixture(t)
	require.Len(t, f.emitted, 1)
	require.Nil(t, f.emitted[0])

	s := f.register(t, testEmail)
	require.Len(t, f.emitted, 2)
	require.True(t, f.emitted[1].Equal(s))

	require.NoError(t, f.provider.SignOut(context.Background()))
	require.Len(t, f.emitted, 3)
	require.Nil(t, f.emitted[2])
	require.Nil(t, f.provider.Current())
}

func TestProvider_Authenticate(t *testing.T) {
	t.Run("new github user", func(t *testing.T) {
		f := setupTestFixture(t)

		res, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.NoError(t, err)
		require.Equal(t, identity.OutcomeWithToken, res.Outcome())
		require.Equal(t, "gh-42", *res.ProviderAccessToken)
		require.NotEmpty(t, res.IdentityAssertionToken)
		require.Equal(t, []sessions.ProviderID{sessions.ProviderGithub}, res.Session.LinkedProviders)
		require.Equal(t, "octocat", res.Session.Identity.DisplayName)
		require.True(t, f.provider.Current().Equal(res.Session))
		require.Zero(t, f.provider.Popups().Pending())

		account, err := f.users.GetByProviderLink(sessions.ProviderGithub, "42")
		require.NoError(t, err)
		require.Equal(t, res.Session.Identity.ID, account.ID)

		authURL, err := url.Parse(f.github.authURLs[0])
		require.NoError(t, err)
		require.Equal(t, "select_account", authURL.Query().Get("prompt"))
		require.Equal(t, "repo", authURL.Query().Get("scope"))
	})

	t.Run("returning github user keeps the account", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.NoError(t, err)
		require.NoError(t, f.provider.SignOut(context.Background()))

		second, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.NoError(t, err)
		require.Equal(t, first.Session.Identity.ID, second.Session.Identity.ID)
	})

	t.Run("repo scope not granted", func(t *testing.T) {
		f := setupTestFixture(t)
		f.github.grant = githubGrant("42", "octocat", "", "read:user")

		res, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.NoError(t, err)
		require.Nil(t, res.ProviderAccessToken)
		require.Equal(t, identity.OutcomeWithoutToken, res.Outcome())
		require.NotNil(t, f.provider.Current())
	})

	t.Run("popup dismissed", func(t *testing.T) {
		f := setupTestFixture(t)
		f.popupResult = &localidp.PopupResult{Error: "access_denied", ErrorDescription: "user cancelled"}

		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.ErrorIs(t, err, errors.ErrProviderDenied)
		require.Nil(t, f.provider.Current())
		require.Len(t, f.emitted, 1)
		require.Zero(t, f.provider.Popups().Pending())
	})

	t.Run("popup blocked", func(t *testing.T) {
		f := setupTestFixture(t)
		f.openErr = errors.New("no browser")

		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.ErrorIs(t, err, errors.ErrProviderDenied)
	})

	t.Run("popup never returns", func(t *testing.T) {
		f := setupTestFixture(t, localidp.WithPopupTimeout(20*time.Millisecond))
		f.popupResult = nil

		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.ErrorIs(t, err, errors.ErrProviderDenied)
		require.Zero(t, f.provider.Popups().Pending())
	})

	t.Run("exchange failure", func(t *testing.T) {
		f := setupTestFixture(t)
		f.github.exchangeErr = errors.New("bad verification code")

		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.Error(t, err)
		require.Nil(t, f.provider.Current())
	})

	t.Run("request with a target", func(t *testing.T) {
		f := setupTestFixture(t)
		s := f.register(t, testEmail)

		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(s))
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
	})

	t.Run("request without repo scope", func(t *testing.T) {
		f := setupTestFixture(t)
		req := identity.NewGithubRequest(nil)
		req.RequestedScopes = []string{"read:user"}

		_, err := f.provider.Authenticate(context.Background(), req)
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
		require.Empty(t, f.github.authURLs)
	})

	t.Run("email owned by a password account", func(t *testing.T) {
		f := setupTestFixture(t)
		f.register(t, testEmail)
		require.NoError(t, f.provider.SignOut(context.Background()))
		f.github.grant = githubGrant("42", "octocat", "John.Doe@example.com", "repo")

		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.ErrorIs(t, err, errors.ErrCredentialConflict)
		require.Nil(t, f.provider.Current())

		_, err = f.users.GetByProviderLink(sessions.ProviderGithub, "42")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestProvider_Link(t *testing.T) {
	t.Run("links github to a password account", func(t *testing.T) {
		f := setupTestFixture(t)
		current := f.register(t, testEmail)

		res, err := f.provider.Link(context.Background(), identity.NewGithubRequest(current))
		require.NoError(t, err)
		require.Equal(t, current.Identity.ID, res.Session.Identity.ID)
		require.ElementsMatch(t, []sessions.ProviderID{sessions.ProviderGithub, sessions.ProviderPassword}, res.Session.LinkedProviders)
		require.Equal(t, current.IssuedAt, res.Session.IssuedAt)
		require.Equal(t, current.ExpiresAt, res.Session.ExpiresAt)
		require.Equal(t, "gh-42", *res.ProviderAccessToken)
		require.Equal(t, "https://avatars.test/octocat", res.Session.Identity.AvatarURL)
		require.True(t, f.provider.Current().Equal(res.Session))
	})

	t.Run("github account owned by another user", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
		require.NoError(t, err)
		require.NoError(t, f.provider.SignOut(context.Background()))

		current := f.register(t, testEmail)
		emitted := len(f.emitted)

		_, err = f.provider.Link(context.Background(), identity.NewGithubRequest(current))
		require.ErrorIs(t, err, errors.ErrCredentialConflict)
		require.True(t, f.provider.Current().Equal(current))
		require.Len(t, f.emitted, emitted)

		account, err := f.users.GetByID(current.Identity.ID)
		require.NoError(t, err)
		require.Equal(t, []sessions.ProviderID{sessions.ProviderPassword}, account.Providers())
	})

	t.Run("relinking the same github account", func(t *testing.T) {
		f := setupTestFixture(t)
		current := f.register(t, testEmail)
		_, err := f.provider.Link(context.Background(), identity.NewGithubRequest(current))
		require.NoError(t, err)

		_, err = f.provider.Link(context.Background(), identity.NewGithubRequest(f.provider.Current()))
		require.NoError(t, err)
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		target := sessions.New(sessions.Identity{ID: "ghost"}, nil, f.now, f.now.Add(time.Hour))

		_, err := f.provider.Link(context.Background(), identity.NewGithubRequest(target))
		require.ErrorIs(t, err, errors.ErrNoSession)
		require.Empty(t, f.github.authURLs)
	})

	t.Run("target is not the current session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.register(t, testEmail)
		target := sessions.New(sessions.Identity{ID: "someone-else"}, nil, f.now, f.now.Add(time.Hour))

		_, err := f.provider.Link(context.Background(), identity.NewGithubRequest(target))
		require.ErrorIs(t, err, errors.ErrSessionMismatch)
	})

	t.Run("signed out while the popup was open", func(t *testing.T) {
		f := setupTestFixture(t)
		current := f.register(t, testEmail)
		f.popupResult = nil
		f.opened = make(chan string, 1)

		done := make(chan error, 1)
		go func() {
			_, err := f.provider.Link(context.Background(), identity.NewGithubRequest(current))
			done <- err
		}()

		state := <-f.opened
		require.NoError(t, f.provider.SignOut(context.Background()))
		require.NoError(t, f.provider.CompletePopup(state, localidp.PopupResult{Code: "code-1"}))
		require.ErrorIs(t, <-done, errors.ErrNoSession)

		account, err := f.users.GetByID(current.Identity.ID)
		require.NoError(t, err)
		_, linked := account.Link(sessions.ProviderGithub)
		require.False(t, linked)
	})
}

func TestProvider_Password(t *testing.T) {
	t.Run("register then sign in", func(t *testing.T) {
		f := setupTestFixture(t)
		registered, err := f.provider.RegisterWithPassword(context.Background(), " John.Doe@Example.com", testPassword)
		require.NoError(t, err)
		require.Equal(t, testEmail, registered.Identity.Email)
		require.Equal(t, []sessions.ProviderID{sessions.ProviderPassword}, registered.LinkedProviders)
		require.NoError(t, f.provider.SignOut(context.Background()))

		signedIn, err := f.provider.SignInWithPassword(context.Background(), testEmail, testPassword)
		require.NoError(t, err)
		require.Equal(t, registered.Identity.ID, signedIn.Identity.ID)
	})

	t.Run("rejections", func(t *testing.T) {
		f := setupTestFixture(t, localidp.WithMinPasswordEntropy(40))
		f.register(t, testEmail)
		require.NoError(t, f.provider.SignOut(context.Background()))

		_, err := f.provider.SignInWithPassword(context.Background(), testEmail, "wrong-password")
		require.ErrorIs(t, err, errors.ErrInvalidCredential)

		_, err = f.provider.SignInWithPassword(context.Background(), "nobody@example.com", testPassword)
		require.ErrorIs(t, err, errors.ErrUnknownAccount)

		_, err = f.provider.SignInWithPassword(context.Background(), "not-an-email", testPassword)
		require.ErrorIs(t, err, errors.ErrMalformedEmail)

		_, err = f.provider.RegisterWithPassword(context.Background(), testEmail, testPassword)
		require.ErrorIs(t, err, errors.ErrEmailInUse)

		_, err = f.provider.RegisterWithPassword(context.Background(), "new@example.com", "12345")
		require.ErrorIs(t, err, errors.ErrWeakPassword)

		_, err = f.provider.RegisterWithPassword(context.Background(), "new@example.com", "aaaaaaa")
		require.ErrorIs(t, err, errors.ErrWeakPassword)

		require.Nil(t, f.provider.Current())
	})

	t.Run("github only account has no password", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.users.Upsert(&users.Account{ID: "gh-only", Email: testEmail}))

		_, err := f.provider.SignInWithPassword(context.Background(), testEmail, testPassword)
		require.ErrorIs(t, err, errors.ErrInvalidCredential)
	})
}

func TestProvider_IDToken(t *testing.T) {
	t.Run("cached until the refresh margin", func(t *testing.T) {
		f := setupTestFixture(t, localidp.WithRefreshMargin(2*time.Minute))
		s := f.register(t, testEmail)

		first, err := f.provider.IDToken(context.Background(), s)
		require.NoError(t, err)
		again, err := f.provider.IDToken(context.Background(), s)
		require.NoError(t, err)
		require.Equal(t, first, again)

		f.now = f.now.Add(9 * time.Minute)
		refreshed, err := f.provider.IDToken(context.Background(), s)
		require.NoError(t, err)
		require.NotEqual(t, first, refreshed)
	})

	t.Run("verifiable", func(t *testing.T) {
		f := setupTestFixture(t)
		s := f.register(t, testEmail)

		raw, err := f.provider.IDToken(context.Background(), s)
		require.NoError(t, err)

		claims, err := f.provider.VerifyAssertion(context.Background(), raw)
		require.NoError(t, err)
		require.Equal(t, s.Identity.ID, claims.Subject)
		require.Equal(t, testEmail, claims.Email)
		require.Equal(t, []string{"password"}, claims.Providers)

		_, err = f.provider.VerifyAssertion(context.Background(), raw+"x")
		require.ErrorIs(t, err, errors.ErrInvalidToken)

		jwks, err := f.provider.JWKS()
		require.NoError(t, err)
		require.Len(t, jwks.Keys, 1)
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.IDToken(context.Background(), nil)
		require.ErrorIs(t, err, errors.ErrNoSession)

		stale := f.register(t, testEmail)
		require.NoError(t, f.provider.SignOut(context.Background()))
		_, err = f.provider.IDToken(context.Background(), stale)
		require.ErrorIs(t, err, errors.ErrNoSession)
	})

	t.Run("expired session is ended", func(t *testing.T) {
		f := setupTestFixture(t, localidp.WithMaxSessionAge(time.Hour))
		s := f.register(t, testEmail)

		f.now = f.now.Add(2 * time.Hour)
		_, err := f.provider.IDToken(context.Background(), s)
		require.ErrorIs(t, err, errors.ErrSessionExpired)
		require.Nil(t, f.provider.Current())
		require.Nil(t, f.emitted[len(f.emitted)-1])
	})
}

func TestProvider_Expiry(t *testing.T) {
	t.Run("expire if due", func(t *testing.T) {
		f := setupTestFixture(t, localidp.WithMaxSessionAge(time.Hour))
		f.register(t, testEmail)

		require.False(t, f.provider.ExpireIfDue())
		f.now = f.now.Add(time.Hour)
		require.True(t, f.provider.ExpireIfDue())
		require.False(t, f.provider.ExpireIfDue())

		stored, err := f.persistence.Load()
		require.NoError(t, err)
		require.Nil(t, stored)
	})

	t.Run("sweep", func(t *testing.T) {
		f := setupTestFixture(t, localidp.WithMaxSessionAge(time.Hour))
		f.register(t, testEmail)
		f.now = f.now.Add(2 * time.Hour)

		stop, err := f.provider.StartExpirySweep("@every 1s")
		require.NoError(t, err)
		defer stop()

		require.Eventually(t, func() bool { return f.provider.Current() == nil }, 3*time.Second, 50*time.Millisecond)
	})

	t.Run("bad schedule", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.StartExpirySweep("whenever")
		require.Error(t, err)
	})
}

func TestProvider_Restore(t *testing.T) {
	assertions, err := localidp.NewAssertions(signer(t), testIssuer, testAudience, time.Minute)
	require.NoError(t, err)
	now := time.Now()

	t.Run("restores a live session", func(t *testing.T) {
		persistence := localidp.NewMemoryPersistence()
		stored := sessions.New(sessions.Identity{ID: "u1"}, []sessions.ProviderID{sessions.ProviderPassword}, now, now.Add(time.Hour))
		require.NoError(t, persistence.Save(stored))

		p, err := localidp.New(localidp.Deps{Users: fakeuserrepo.NewFakeUserRepo(), Persistence: persistence, Assertions: assertions})
		require.NoError(t, err)
		require.True(t, p.Current().Equal(stored))
	})

	t.Run("drops an expired session", func(t *testing.T) {
		persistence := localidp.NewMemoryPersistence()
		stored := sessions.New(sessions.Identity{ID: "u1"}, nil, now.Add(-2*time.Hour), now.Add(-time.Hour))
		require.NoError(t, persistence.Save(stored))

		p, err := localidp.New(localidp.Deps{Users: fakeuserrepo.NewFakeUserRepo(), Persistence: persistence, Assertions: assertions})
		require.NoError(t, err)
		require.Nil(t, p.Current())

		loaded, err := persistence.Load()
		require.NoError(t, err)
		require.Nil(t, loaded)
	})
}

func TestAuthenticate_PopupOutlivesCaller(t *testing.T) {
	t.Run("cancelled caller still completes", func(t *testing.T) {
		f := setupTestFixture(t)
		f.popupResult = nil
		f.opened = make(chan string, 1)

		ctx, cancel := context.WithCancel(context.Background())
		type outcome struct {
			res *identity.CredentialResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := f.provider.Authenticate(ctx, identity.NewGithubRequest(nil))
			done <- outcome{res: res, err: err}
		}()

		state := <-f.opened
		cancel()
		require.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

		require.NoError(t, f.provider.CompletePopup(state, localidp.PopupResult{Code: "code-1"}))
		got := <-done
		require.NoError(t, got.err)
		require.Equal(t, "octocat", got.res.Session.Identity.DisplayName)
	})

	t.Run("closing the provider ends an open popup", func(t *testing.T) {
		f := setupTestFixture(t)
		f.popupResult = nil
		f.opened = make(chan string, 1)

		done := make(chan error, 1)
		go func() {
			_, err := f.provider.Authenticate(context.Background(), identity.NewGithubRequest(nil))
			done <- err
		}()

		state := <-f.opened
		f.provider.Close()
		require.ErrorIs(t, <-done, errors.ErrProviderDenied)
		require.ErrorIs(t, f.provider.CompletePopup(state, localidp.PopupResult{Code: "code-1"}), errors.ErrNotFound)
	})
}
