package sessions

import (
	"sync"
)

// State is the process-wide view of who is signed in. Callers must not read
// Session == nil as "signed out" while Ready is false.
type State struct {
	Session *Session `json:"session"`
	Ready   bool     `json:"ready"`
}

// Authenticated reports a known, signed-in state
func (s State) Authenticated() bool {
	return s.Ready && s.Session != nil
}

// Source is the observe capability of the identity provider. The callback
// fires with the current session on registration and on every change.
type Source interface {
	Observe(fn func(*Session)) (unsubscribe func())
}

// Store holds the single SessionState of the process. Only the provider
// subscription (and the optimistic Refresh patch) writes it.
type Store struct {
	source Source

	// emitMu serialises state changes with watcher notification so watchers
	// see states in the order they were written.
	emitMu sync.Mutex

	mu          sync.RWMutex
	state       State
	generation  uint64
	unsubscribe func()
	watchers    map[int]func(State)
	nextWatcher int
}

// NewStore creates an unsubscribed store in the not-ready state
func NewStore(source Source) *Store {
	return &Store{
		source:   source,
		watchers: make(map[int]func(State)),
	}
}

// SubscribeToProvider registers the single provider observer. Calling it
// again while subscribed is a no-op.
func (s *Store) SubscribeToProvider() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	// placeholder so a concurrent call sees the subscription as taken
	s.unsubscribe = func() {}
	s.mu.Unlock()

	unsubscribe := s.source.Observe(s.onProviderEmission)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// Subscribed reports whether a provider subscription is live
func (s *Store) Subscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsubscribe != nil
}

// Close releases the provider subscription. Ready is left untouched.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// GetSession returns the current state without blocking on I/O
func (s *Store) GetSession() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Session: s.state.Session.Clone(), Ready: s.state.Ready}
}

// Generation increases with every authoritative provider emission
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Watch calls fn with the current state and after every change until the
// returned cancel func is called.
func (s *Store) Watch(fn func(State)) (cancel func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	current := State{Session: s.state.Session.Clone(), Ready: s.state.Ready}
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// Refresh applies an optimistic session patch ahead of the provider event.
// It is dropped if an authoritative emission happened after generation was
// read, or if the patch is for a different principal. Applying the
// authoritative event afterwards converges to the same state.
func (s *Store) Refresh(generation uint64, session *Session) bool {
	if session == nil {
		return false
	}
	return s.write(func(st *State) bool {
		if !st.Ready || st.Session == nil || s.generation != generation {
			return false
		}
		if st.Session.Identity.ID != session.Identity.ID || st.Session.Equal(session) {
			return false
		}
		st.Session = session.Clone()
		return true
	})
}

func (s *Store) onProviderEmission(session *Session) {
	s.write(func(st *State) bool {
		s.generation++
		st.Session = session.Clone()
		st.Ready = true
		return true
	})
}

func (s *Store) write(apply func(*State) bool) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if !apply(&s.state) {
		s.mu.Unlock()
		return false
	}
	current := s.state
	watchers := make([]func(State), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(State{Session: current.Session.Clone(), Ready: current.Ready})
	}
	return true
}
