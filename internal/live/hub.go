// Package live fans post events out to in-process subscribers and relays
// them between server instances through the message broker.
package live

import (
	"context"
	"sync"

	"github.com/foodshare/apiserver/types"
)

const defaultBuffer = 16

// Hub broadcasts post events to subscribers. A subscriber whose buffer is
// full misses the event; publishers never block.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan types.PostEvent]struct{}
	buffer int
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[chan types.PostEvent]struct{}),
		buffer: defaultBuffer,
	}
}

// Publish delivers the event to every current subscriber.
func (h *Hub) Publish(ctx context.Context, event types.PostEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan types.PostEvent, func()) {
	ch := make(chan types.PostEvent, h.buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
