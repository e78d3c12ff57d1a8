// Package realtime keeps the topic subscription table of connected
// listeners and delivers notifications to them.
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"foodhub/internal/models"
)

// Listener receives the notifications published on one topic. A listener
// whose buffer is full misses events rather than blocking the publisher.
type Listener struct {
	ID    string
	Topic string
	ch    chan models.Notification
}

// C returns the channel the listener reads from. It is closed on Leave.
func (l *Listener) C() <-chan models.Notification {
	return l.ch
}

// Hub maps topics to their current listeners
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Listener]struct{}
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// NewHub creates a hub whose listeners buffer up to buffer notifications
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		topics: make(map[string]map[*Listener]struct{}),
		buffer: buffer,
	}
}

// Join adds a listener to topic. On a closed hub the listener's channel
// is already closed.
func (h *Hub) Join(topic string) *Listener {
	l := &Listener{
		ID:    uuid.NewString(),
		Topic: topic,
		ch:    make(chan models.Notification, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(l.ch)
		return l
	}

	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Listener]struct{})
		h.topics[topic] = set
	}
	set[l] = struct{}{}
	return l
}

// Leave removes l from its topic and closes its channel. Leaving twice is a no-op.
func (h *Hub) Leave(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[l.Topic]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	close(l.ch)
	if len(set) == 0 {
		delete(h.topics, l.Topic)
	}
}

// Close disconnects every listener and refuses new ones, so open streams
// end and the HTTP server can drain.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.topics {
		for l := range set {
			close(l.ch)
		}
		delete(h.topics, topic)
	}
}

// Publish delivers n to every current listener of n.Topic and returns how
// many received it.
func (h *Hub) Publish(n models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for l := range h.topics[n.Topic] {
		select {
		case l.ch <- n:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Listeners returns the number of listeners joined to topic
func (h *Hub) Listeners(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped returns how many deliveries were skipped on full buffers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
