// Package events provides the in-process notification bus shared by the
// manifest loader, the base URL selector and their collaborators.
//
// Delivery is synchronous and ordered: Trigger invokes every handler currently
// registered for the event, in subscription order, before it returns. The
// handler list is snapshotted before delivery so handlers may subscribe,
// unsubscribe or trigger further events without deadlocking.
package events

import (
	"log/slog"
	"sync"
)

// Event identifies a notification on the bus.
type Event string

// Handler receives the payload published with an event.
type Handler func(payload any)

// SubscriptionID identifies a single registration returned by On.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	owner   any
	handler Handler
}

// Bus is a synchronous publish/subscribe channel keyed by event identifier.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Event][]subscription
	nextID   SubscriptionID
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Event][]subscription),
		logger:   logger,
	}
}

// On registers handler for event on behalf of owner. The owner is used by Off
// to remove all of its registrations for an event and must be comparable
// (typically a pointer to the subscribing component).
func (b *Bus) On(event Event, owner any, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], subscription{
		id:      id,
		owner:   owner,
		handler: handler,
	})
	return id
}

// Off removes every registration owner holds for event. Removing a
// registration that does not exist is a no-op.
func (b *Bus) Off(event Event, owner any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[event]
	kept := subs[:0:0]
	for _, s := range subs {
		if s.owner != owner {
			kept = append(kept, s)
		}
	}
	b.setLocked(event, kept)
}

// Unsubscribe removes a single registration.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for event, subs := range b.handlers {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			kept := make([]subscription, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			kept = append(kept, subs[i+1:]...)
			b.setLocked(event, kept)
			return
		}
	}
}

func (b *Bus) setLocked(event Event, subs []subscription) {
	if len(subs) == 0 {
		delete(b.handlers, event)
		return
	}
	b.handlers[event] = subs
}

// Trigger delivers payload to all handlers registered for event.
func (b *Bus) Trigger(event Event, payload any) {
	b.mu.RLock()
	subs := b.handlers[event]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	b.logger.Debug("event triggered",
		slog.String("event", string(event)),
		slog.Int("subscribers", len(snapshot)),
	)

	for _, s := range snapshot {
		s.handler(payload)
	}
}

// HasSubscribers reports whether any handler is registered for event.
func (b *Bus) HasSubscribers(event Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event]) > 0
}

// Reset removes every registration.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Event][]subscription)
}
