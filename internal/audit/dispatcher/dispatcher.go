// Package dispatcher routes decoded events to per-type handlers.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"audittrail/internal/audit"
)

// HandlerFunc normalizes and records one event. Errors propagate to the
// consumption loop, which applies its ack/nack policy.
type HandlerFunc func(ctx context.Context, event *audit.EventMessage) error

// Wildcard is the registration key for the catch-all handler consulted when
// no exact event type matches.
const Wildcard = "*"

// Registry maps exact event-type strings to handlers. Dispatch falls back to
// the wildcard handler, then to the built-in default, so an unmapped event
// type is never silently dropped.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	defaultFn HandlerFunc
	logger    *slog.Logger
}

// New creates a registry. defaultFn handles events with no exact or wildcard
// registration; it is required.
func New(logger *slog.Logger, defaultFn HandlerFunc) *Registry {
	return &Registry{
		handlers:  make(map[string]HandlerFunc),
		defaultFn: defaultFn,
		logger:    logger,
	}
}

// Register binds a handler to an event type. Registering the same type again
// overwrites the previous handler; the last registration wins.
func (r *Registry) Register(eventType string, fn HandlerFunc) {
	r.mu.Lock()
	_, replaced := r.handlers[eventType]
	r.handlers[eventType] = fn
	r.mu.Unlock()

	r.logger.Info("registered event handler",
		"event_type", eventType,
		"replaced", replaced,
	)
}

// Dispatch invokes the handler for the event's type: exact match first, then
// the wildcard registration, then the default handler. Exactly one handler
// runs per event.
func (r *Registry) Dispatch(ctx context.Context, event *audit.EventMessage) error {
	r.mu.RLock()
	fn, ok := r.handlers[event.EventType]
	if !ok {
		fn, ok = r.handlers[Wildcard]
	}
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("no handler for event type, using default",
			"event_type", event.EventType,
			"event_id", event.EventID,
		)
		return r.defaultFn(ctx, event)
	}
	return fn(ctx, event)
}
