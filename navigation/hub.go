package navigation

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	EventNavigate = "navigate"
	EventSession  = "session"

	clientBuffer = 8
)

// Event is pushed to connected browsers
type Event struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Hub fans events out to subscribed clients. Slow clients drop events
// rather than block the sender.
type Hub struct {
	mu      sync.Mutex
	clients map[int]chan Event
	nextID  int
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int]chan Event),
	}
}

// Subscribe registers a client; cancel closes its channel. After Close the
// channel is returned already closed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	ch := make(chan Event, clientBuffer)
	h.clients[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.clients[id]; !ok {
				return
			}
			delete(h.clients, id)
			close(ch)
		})
	}
}

func (h *Hub) Broadcast(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.clients {
		select {
		case ch <- e:
		default:
			log.Warn().Int("client", id).Str("type", e.Type).Msg("dropping event for slow client")
		}
	}
}

// Close disconnects every client so open event streams end
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}

// Clients returns the number of subscribed clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
