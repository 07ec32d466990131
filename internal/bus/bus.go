package bus

import (
	"log/slog"
	"sync"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
)

// Handler consumes one event. Handlers run synchronously on the publishing
// goroutine; self-skip is enforced by the bus before the handler is called.
type Handler func(Event)

// Bus is the shared fan-out channel between stores. Safe for concurrent use.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   []*subscription
}

type subscription struct {
	id      int
	scope   cache.Scope
	handler Handler
	live    bool
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for a scope and returns its unsubscribe
// function. Unsubscribe is idempotent; after it returns, the handler will not
// run again even for an event already in flight on another goroutine.
func (b *Bus) Subscribe(scope cache.Scope, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, scope: scope, handler: handler, live: true}
	b.subs = append(b.subs, sub)

	b.logger.Debug("bus subscribe", "scope", scope, "subscribers", len(b.subs))

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.live = false
		for i := range b.subs {
			if b.subs[i].id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to every live subscriber in subscribe order,
// skipping the subscriber whose scope matches the event's origin. The
// originating store applied its change optimistically before publishing;
// delivering back to it would double-count.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	targets := make([]*subscription, len(b.subs))
	copy(targets, b.subs)
	b.mu.Unlock()

	delivered := 0
	for _, sub := range targets {
		if sub.scope == event.Origin {
			continue // self-skip
		}
		// Re-check liveness under the lock: the subscriber may have torn
		// down between the snapshot above and this delivery.
		b.mu.Lock()
		live := sub.live
		b.mu.Unlock()
		if !live {
			continue
		}
		sub.handler(event)
		delivered++
	}

	b.logger.Debug("bus publish",
		"kind", event.Kind,
		"post", event.Post,
		"origin", event.Origin,
		"delivered", delivered,
	)
}
