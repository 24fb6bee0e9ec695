// Package event defines the in-process publish/subscribe bus that decouples
// the orchestration engine from observers, together with the fixed set of
// event types and typed payloads the engine publishes.
//
// Delivery is synchronous and ordered: for each Publish, subscribers of the
// event's type run sequentially in subscription order on the publisher's
// goroutine. Handler errors and panics are logged and isolated so one
// misbehaving observer can never block the engine or its sibling observers.
package event
