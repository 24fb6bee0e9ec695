package event

import (
	"context"
	"sync"

	"github.com/hupe1980/flowmesh/logging"
)

// Handler processes a published event. Handlers run synchronously on the
// publisher's goroutine; keep them fast or hand off internally.
type Handler func(ctx context.Context, e Event) error

// Bus is an in-process publish/subscribe dispatcher keyed by event type.
//
// Subscribers registered for a type are invoked sequentially, in
// subscription order, for each publish. A handler error or panic is logged
// and never aborts delivery to the remaining subscribers, and never reaches
// the publisher. Publishing a type with no subscribers is a no-op.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	logger      logging.Logger
}

// BusOptions configures a Bus.
type BusOptions struct {
	// Logger receives handler failures. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewBus creates an empty bus.
func NewBus(optFns ...func(o *BusOptions)) *Bus {
	opts := BusOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      opts.Logger,
	}
}

// Subscribe registers a handler for an event type. Handlers are retained for
// the lifetime of the bus; there is no unsubscribe.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], h)
}

// Publish delivers the event to every subscriber of its type, in
// subscription order. Failures are isolated per handler.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := b.subscribers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ctx, h, e)
	}
}

// invoke runs a single handler, converting panics and errors into log entries.
func (b *Bus) invoke(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", "event_type", e.Type, "event_id", e.ID, "panic", r)
		}
	}()

	if err := h(ctx, e); err != nil {
		b.logger.Error("Event handler failed", "event_type", e.Type, "event_id", e.ID, "error", err.Error())
	}
}
