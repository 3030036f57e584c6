// ABOUTME: Per-match spectator event bus with synchronous in-order delivery.
// ABOUTME: Subscriber failures are isolated; unsubscribing mid-delivery is safe.

package match

import (
	"log/slog"
	"slices"
	"sync"
)

// Handler receives one spectator event. Handlers run synchronously on the
// emitting goroutine, so they should return quickly.
type Handler func(Event)

// Bus fans spectator events out to per-match subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	logger *slog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[int]Handler),
		logger: logger.With("component", "event-bus"),
	}
}

// Subscribe registers a handler for one match's events and returns its
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(matchID string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.subs[matchID] == nil {
		b.subs[matchID] = make(map[int]Handler)
	}
	b.subs[matchID][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[matchID]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, matchID)
			}
		}
	}
}

// Publish delivers an event to a snapshot of the match's current
// subscribers, in subscription order. A panicking handler is logged and
// skipped; it never reaches the orchestrator's control flow.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	handlers := b.subs[event.MatchID]
	ids := make([]int, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	// Map iteration order is random; deliver in subscription order.
	slices.Sort(ids)
	snapshot := make([]Handler, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, handlers[id])
	}
	b.mu.Unlock()

	for _, handler := range snapshot {
		b.deliver(handler, event)
	}
}

func (b *Bus) deliver(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"match_id", event.MatchID,
				"kind", event.Kind,
				"panic", r,
			)
		}
	}()
	handler(event)
}
