// Package events fans session changes out to the page streams.
package events

import (
	"sync"

	"github.com/joeblew999/plat-map/internal/geo"
)

// Kinds of session change.
const (
	Viewport = "viewport" // displayed coordinate changed
	Layers   = "layers"   // layer group visibility changed
	Closed   = "closed"   // session closed
)

// Event is one session change.
type Event struct {
	Kind    string
	Session string
	Coord   geo.Coordinate // set for Viewport
}

// Bus is a simple fan-out pub/sub for session events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	size int
}

// NewBus creates a bus whose subscriber channels buffer size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 16
	}
	return &Bus{subs: make(map[chan Event]struct{}), size: size}
}

// Publish sends an event to all subscribers (non-blocking). A subscriber
// whose buffer is full misses the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
