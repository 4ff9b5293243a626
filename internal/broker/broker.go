// Package broker abstracts the message bus the audit trail consumes from.
//
// Exactly one backend is selected at startup from configuration; nothing
// outside that selection point branches on the broker kind. Both backends
// honor the same delivery contract: a handler returning nil acknowledges the
// message, a handler returning an error routes it to the dead-letter
// destination without requeueing. There is no automatic retry; failed
// messages are replayed manually from the dead-letter destination.
package broker

import "context"

// Message is one delivery from the bus. It is broker-owned until
// acknowledged; handlers must not retain the body past their return.
type Message struct {
	// Subject is the topic (Kafka) or subject (NATS) the message arrived on.
	Subject string
	// Key is the producer-assigned partition or routing key, when present.
	Key string
	// Body is the raw JSON payload.
	Body []byte
	// Deliveries counts delivery attempts, starting at 1 where the backend
	// reports it and 0 where it does not.
	Deliveries uint64
}

// HandlerFunc processes one delivery. Returning nil acknowledges the
// message; returning an error dead-letters it without requeue. Handlers
// must never panic past this boundary; the consumption loop recovers.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Broker is a single connection to the bus plus its declared topology.
type Broker interface {
	// Connect establishes the network session and declares topology
	// (input destination, dead-letter destination, bindings) idempotently.
	// Calling Connect while already connected logs a warning and returns
	// nil. A failed Connect is fatal to startup and must be propagated.
	Connect(ctx context.Context) error

	// Close releases the connection. Safe to call repeatedly.
	Close() error

	// Healthy reports true only while the connection is open and the
	// underlying session is live. It flips to false on asynchronous
	// connection loss; reconnection is the supervisor's job, not ours.
	Healthy() bool

	// Consume delivers messages to fn under the configured prefetch bound
	// until ctx is cancelled. It blocks; run it in its own goroutine.
	// In-flight handlers finish before Consume returns.
	Consume(ctx context.Context, fn HandlerFunc) error
}
