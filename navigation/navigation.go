// Package navigation moves the user between surfaces of the dashboard.
// Inside a request the move becomes that request's redirect; otherwise it
// is pushed to every connected browser.
package navigation

import (
	"context"
	"sync"
)

// Surfaces of the dashboard
const (
	PublicEntry = "/"
	Dashboard   = "/dashboard"
	Repos       = "/dashboard/repos"
	Settings    = "/settings"
)

// Navigator sends the user to path
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

type redirectKey struct{}

// Redirect collects the navigation requested while serving one request
type Redirect struct {
	mu   sync.Mutex
	path string
}

// Path returns the requested target, empty when none
func (r *Redirect) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Redirect) set(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
}

// WithRedirect scopes navigation requested under ctx to the returned Redirect
func WithRedirect(ctx context.Context) (context.Context, *Redirect) {
	r := &Redirect{}
	return context.WithValue(ctx, redirectKey{}, r), r
}

func redirectFrom(ctx context.Context) *Redirect {
	r, _ := ctx.Value(redirectKey{}).(*Redirect)
	return r
}

// Dispatcher routes navigation to the request in ctx or to the hub
type Dispatcher struct {
	hub *Hub
}

var _ Navigator = (*Dispatcher)(nil)

func NewDispatcher(hub *Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

func (d *Dispatcher) Navigate(ctx context.Context, path string) {
	if r := redirectFrom(ctx); r != nil {
		r.set(path)
		return
	}
	d.hub.Broadcast(Event{Type: EventNavigate, Path: path})
}
