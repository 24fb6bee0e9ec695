package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/flowmesh/event"
)

// Recorder captures published events for assertions. Safe for concurrent
// publishes (parallel stage fan-out).
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Handler returns the bus handler that records events.
func (r *Recorder) Handler() event.Handler {
	return func(_ context.Context, e event.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
		return nil
	}
}

// BindAll subscribes the recorder to every event type the engine publishes.
func (r *Recorder) BindAll(bus *event.Bus) {
	for _, t := range event.Types() {
		bus.Subscribe(t, r.Handler())
	}
}

// Events returns a copy of the recorded events in publication order.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type, in publication order.
func (r *Recorder) OfType(eventType string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []event.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the recorded event types in publication order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
