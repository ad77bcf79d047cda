package localidp

import (
	"context"
	"sync"

	"github.com/jrsteele09/agentify-session/internal/errors"
)

// PopupResult is what the provider redirect delivers back to a waiting
// attempt
type PopupResult struct {
	Code             string
	Error            string
	ErrorDescription string
}

// Denied reports an explicit refusal by the user or the provider
func (r PopupResult) Denied() bool {
	return r.Error != ""
}

// PopupBroker pairs each open popup, keyed by its OAuth state, with the
// redirect that completes it. A state resolves at most once.
type PopupBroker struct {
	mu      sync.Mutex
	pending map[string]chan PopupResult
}

// NewPopupBroker creates an empty broker
func NewPopupBroker() *PopupBroker {
	return &PopupBroker{
		pending: make(map[string]chan PopupResult),
	}
}

// Open registers state and returns the channel its result arrives on
func (b *PopupBroker) Open(state string) (<-chan PopupResult, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.pending[state]; exists {
		return nil, errors.New("state already pending")
	}
	ch := make(chan PopupResult, 1)
	b.pending[state] = ch
	return ch, nil
}

// Resolve delivers result to the attempt waiting on state
func (b *PopupBroker) Resolve(state string, result PopupResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.pending[state]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "popup state")
	}
	delete(b.pending, state)
	ch <- result
	return nil
}

// Cancel forgets state; a later Resolve for it fails
func (b *PopupBroker) Cancel(state string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.pending, state)
}

// Pending returns the number of open popups
func (b *PopupBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

// wait blocks until the popup resolves or ctx ends. A popup that never
// comes back is treated like a dismissed one.
func wait(ctx context.Context, ch <-chan PopupResult) (PopupResult, error) {
	select {
	case r := <-ch:
		if r.Denied() {
			return r, errors.Wrapf(errors.ErrProviderDenied, "%s %s", r.Error, r.ErrorDescription)
		}
		if r.Code == "" {
			return r, errors.Wrapf(errors.ErrProviderDenied, "popup returned no code")
		}
		return r, nil
	case <-ctx.Done():
		return PopupResult{}, errors.Wrapf(errors.ErrProviderDenied, "popup closed: %v", ctx.Err())
	}
}
