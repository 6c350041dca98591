// Package pipeline implements the event pipeline: a bounded-concurrency
// processor pool pulling or receiving messages from a durable bus,
// validating and dispatching them, and translating the outcome into
// at-least-once ack/nack semantics (spec.md §4.4).
package pipeline

import "context"

// Delivery is the uniform contract a Producer exposes to the processor
// pool, regardless of whether the underlying bus is pull (pgmq) or
// push (Pub/Sub): (topic, body_bytes, ack_handle).
type Delivery struct {
	Topic string
	Body  []byte

	// Ack acknowledges successful processing.
	Ack func(ctx context.Context)
	// Nack signals a transient failure; the bus will redeliver.
	Nack func(ctx context.Context)
	// Archive acknowledges a message the dispatcher classified as
	// terminal-for-message (it will never succeed on redelivery),
	// moving it to the bus's archive/dead-letter store instead of
	// deleting it outright so it stays inspectable. Nil when the
	// underlying bus has no archive concept, in which case the
	// processor falls back to Ack.
	Archive func(ctx context.Context)
}

// Producer is a source of Deliveries. Implementations own their
// connection to the bus. The processor pool stops draining a producer
// when its own ctx is done or the channel is closed; neither producer
// in this package closes its channel.
type Producer interface {
	Deliveries() <-chan Delivery
}
