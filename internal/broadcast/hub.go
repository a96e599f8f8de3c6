package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

const clientBuffer = 16

// Hub fans payloads out to subscribed display connections. Each client gets
// a buffered channel; a client that cannot keep up has payloads dropped
// rather than blocking the sender, which is safe because every payload is a
// full snapshot.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan []byte)}
}

// Subscribe registers a new display connection and returns its id and
// receive channel.
func (h *Hub) Subscribe() (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a connection and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
}

// SendJSONToAll delivers the payload to every subscriber without blocking.
func (h *Hub) SendJSONToAll(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// ClientCount reports the number of connected displays.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
