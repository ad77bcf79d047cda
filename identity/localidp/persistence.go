package localidp

import (
	"sync"

	"github.com/jrsteele09/agentify-session/sessions"
)

// SessionPersistence keeps the current session across restarts. Load returns
// nil, nil when nothing is stored.
type SessionPersistence interface {
	Load() (*sessions.Session, error)
	Save(session *sessions.Session) error
	Clear() error
}

// MemoryPersistence forgets the session when the process exits
type MemoryPersistence struct {
	mu      sync.Mutex
	session *sessions.Session
}

var _ SessionPersistence = (*MemoryPersistence)(nil)

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

func (m *MemoryPersistence) Load() (*sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone(), nil
}

func (m *MemoryPersistence) Save(session *sessions.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session.Clone()
	return nil
}

func (m *MemoryPersistence) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
