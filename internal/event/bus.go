// Package event provides the local signal bus that fans navigation and
// connection status signals out to page listeners.
package event

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/operate-experience/navsync/internal/logging"
)

// EventType represents the type of event.
type EventType string

const (
	// NavigationSignalled is published for every accepted navigation request.
	NavigationSignalled EventType = "sse-navigation"
	// StatusChanged is published whenever the push connection changes state.
	StatusChanged EventType = "sse-status"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an ID.
// removed is set on unsubscribe so an in-flight publish skips the entry.
type subscriberEntry struct {
	id        uint64
	eventType EventType
	all       bool
	fn        Subscriber
	removed   atomic.Bool
}

// Bus is a synchronous, ordered observer list.
// The subscriber slice is copy-on-write: Publish iterates a snapshot, so
// handlers may subscribe or unsubscribe (including themselves) mid-dispatch.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriberEntry
	nextID uint64
	closed bool
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function; calling it more than once is a no-op.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	return b.add(&subscriberEntry{eventType: eventType, fn: fn})
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	return b.add(&subscriberEntry{all: true, fn: fn})
}

func (b *Bus) add(entry *subscriberEntry) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	entry.id = b.nextID
	b.subs = append(slices.Clip(b.subs), entry)

	return func() {
		b.unsubscribe(entry)
	}
}

// unsubscribe removes a subscriber.
func (b *Bus) unsubscribe(entry *subscriberEntry) {
	if entry.removed.Swap(true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = slices.DeleteFunc(slices.Clone(b.subs), func(e *subscriberEntry) bool {
		return e.id == entry.id
	})
}

// Publish delivers an event to every matching subscriber in subscription
// order before returning. Subscribers added during the publish do not see it.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	snapshot := b.subs
	b.mu.RUnlock()

	for _, entry := range snapshot {
		if entry.removed.Load() {
			continue
		}
		if !entry.all && entry.eventType != event.Type {
			continue
		}
		deliver(entry, event)
	}
}

// deliver calls one subscriber, containing any panic so the remaining
// subscribers and the publisher are unaffected.
func deliver(entry *subscriberEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("eventType", string(event.Type)).
				Uint64("subscriber", entry.id).
				Interface("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	entry.fn(event)
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes all subscribers. Later publishes and subscriptions are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, entry := range b.subs {
		entry.removed.Store(true)
	}
	b.subs = nil
	return nil
}
