package session

import (
	"sync"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/protocol"
)

// DefaultHubCapacity matches the per-subscriber buffer of the broadcast
// channel; a subscriber that falls this far behind starts losing messages.
const DefaultHubCapacity = 64

// Hub fans one session's server messages out to every connected player.
// Send never blocks, so it is safe to call while holding a store shard
// lock; a full subscriber buffer drops the message instead of stalling
// the session.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan protocol.ServerMessage
	cap  int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultHubCapacity
	}
	return &Hub{subs: make(map[int]chan protocol.ServerMessage), cap: capacity}
}

// Subscribe registers a new receiver. Every message sent after this call is
// delivered in send order. The returned func removes the subscription; it
// is idempotent.
func (h *Hub) Subscribe() (<-chan protocol.ServerMessage, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan protocol.ServerMessage, h.cap)
	h.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Send delivers msg to all current subscribers without blocking.
func (h *Hub) Send(msg protocol.ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			metrics.BroadcastDropped.Inc()
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
