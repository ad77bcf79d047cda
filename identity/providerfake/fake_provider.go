package fakeprovider

import (
	"context"
	"sync"

	"github.com/jrsteele09/agentify-session/identity"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider returns scripted results and records the requests it gets.
// Successful flows emit their session to observers like a real provider.
type FakeProvider struct {
	lock      sync.Mutex
	current   *sessions.Session
	observers map[int]func(*sessions.Session)
	nextID    int

	// SilentLink skips the emission after Link, so callers see only their
	// own optimistic refresh
	SilentLink bool

	AuthenticateResult *identity.CredentialResult
	AuthenticateErr    error
	LinkResult         *identity.CredentialResult
	LinkErr            error
	PasswordSession    *sessions.Session
	PasswordErr        error
	SignOutErr         error
	IDTokenValue       string
	IDTokenErr         error

	Requests     []identity.LinkRequest
	IDTokenCalls int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		observers:    make(map[int]func(*sessions.Session)),
		IDTokenValue: "assertion-token",
	}
}

func (p *FakeProvider) Observe(fn func(*sessions.Session)) func() {
	p.lock.Lock()
	id := p.nextID
	p.nextID++
	p.observers[id] = fn
	current := p.current.Clone()
	p.lock.Unlock()

	fn(current)
	return func() {
		p.lock.Lock()
		delete(p.observers, id)
		p.lock.Unlock()
	}
}

// Emit publishes session to every observer, as a provider-side change would
func (p *FakeProvider) Emit(session *sessions.Session) {
	p.lock.Lock()
	p.current = session.Clone()
	observers := make([]func(*sessions.Session), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.lock.Unlock()

	for _, fn := range observers {
		fn(session.Clone())
	}
}

func (p *FakeProvider) Observers() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.observers)
}

func (p *FakeProvider) Authenticate(_ context.Context, req identity.LinkRequest) (*identity.CredentialResult, error) {
	p.record(req)
	if p.AuthenticateErr != nil {
		return nil, p.AuthenticateErr
	}
	p.Emit(p.AuthenticateResult.Session)
	return p.AuthenticateResult, nil
}

func (p *FakeProvider) Link(_ context.Context, req identity.LinkRequest) (*identity.CredentialResult, error) {
	p.record(req)
	if p.LinkErr != nil {
		return nil, p.LinkErr
	}
	if !p.SilentLink {
		p.Emit(p.LinkResult.Session)
	}
	return p.LinkResult, nil
}

func (p *FakeProvider) SignInWithPassword(_ context.Context, _, _ string) (*sessions.Session, error) {
	if p.PasswordErr != nil {
		return nil, p.PasswordErr
	}
	p.Emit(p.PasswordSession)
	return p.PasswordSession, nil
}

func (p *FakeProvider) RegisterWithPassword(ctx context.Context, email, password string) (*sessions.Session, error) {
	return p.SignInWithPassword(ctx, email, password)
}

func (p *FakeProvider) SignOut(_ context.Context) error {
	if p.SignOutErr != nil {
		return p.SignOutErr
	}
	p.Emit(nil)
	return nil
}

func (p *FakeProvider) IDToken(_ context.Context, session *sessions.Session) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.IDTokenCalls++
	if session == nil {
		return "", errors.ErrNoSession
	}
	if p.IDTokenErr != nil {
		return "", p.IDTokenErr
	}
	return p.IDTokenValue, nil
}

func (p *FakeProvider) record(req identity.LinkRequest) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.Requests = append(p.Requests, req)
}
