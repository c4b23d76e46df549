package monitor

import (
	"sync"
	"time"
)

const subscriberBuffer = 256

type subscriber struct {
	id   string
	send chan Envelope
	done chan struct{}
}

// Hub fans envelopes out to subscribers. Each subscriber has its own
// buffered channel and writer goroutine; a subscriber whose buffer is full
// misses envelopes instead of stalling the broadcaster.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

// Add registers a subscriber that receives envelopes through send, and
// returns the function that unregisters it. send runs on a dedicated
// goroutine; once it fails the subscriber stops receiving.
func (h *Hub) Add(id string, send func(Envelope) error) (remove func()) {
	s := &subscriber{
		id:   id,
		send: make(chan Envelope, subscriberBuffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for env := range s.send {
			if err := send(env); err != nil {
				return
			}
		}
	}()

	h.mu.Lock()
	if old, ok := h.subs[id]; ok {
		close(old.send)
	}
	h.subs[id] = s
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if h.subs[id] != s {
			h.mu.Unlock()
			return
		}
		delete(h.subs, id)
		close(s.send)
		h.mu.Unlock()

		select {
		case <-s.done:
		case <-time.After(time.Second):
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues env for every subscriber without blocking.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.send <- env:
		default:
		}
	}
}

// SendTo queues env for one subscriber. It reports whether the subscriber
// exists.
func (h *Hub) SendTo(id string, env Envelope) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	select {
	case s.send <- env:
	default:
	}
	return true
}
