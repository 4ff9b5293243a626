// Package consumer runs the consumption loop: decode each delivery, route
// it through the dispatcher, and keep the counters the health endpoint and
// the metrics endpoint report.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"audittrail/internal/audit"
	"audittrail/internal/audit/dispatcher"
	"audittrail/internal/broker"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/metrics"
)

// State is a read-only snapshot of the consumption pipeline.
type State struct {
	Connected    bool      `json:"connected"`
	Processed    uint64    `json:"processed"`
	Failed       uint64    `json:"failed"`
	DeadLettered uint64    `json:"deadLettered"`
	LastEventAt  time.Time `json:"lastEventAt"`
}

// Consumer binds a broker to the dispatcher and applies the delivery
// contract: nil from the handler acknowledges, an error dead-letters.
type Consumer struct {
	broker   broker.Broker
	registry *dispatcher.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu    sync.RWMutex
	state State
}

// New creates a consumer. Run must be called to start consuming.
func New(b broker.Broker, registry *dispatcher.Registry, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	return &Consumer{
		broker:   b,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// Run consumes until ctx is cancelled. It blocks; run it in its own
// goroutine and treat a non-nil return as fatal.
func (c *Consumer) Run(ctx context.Context) error {
	return c.broker.Consume(ctx, c.handle)
}

// State returns a snapshot of the pipeline counters plus broker liveness.
func (c *Consumer) State() State {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()
	s.Connected = c.broker.Healthy()
	return s
}

// handle processes one delivery end to end. Every return path is accounted
// for: nil acknowledges, an error dead-letters, and a panic in any handler
// is converted to an error so a malformed event can never take down the
// loop.
func (c *Consumer) handle(ctx context.Context, msg *broker.Message) (err error) {
	c.metrics.InFlightDeliveries.Inc()
	timer := time.Now()
	defer func() {
		c.metrics.InFlightDeliveries.Dec()
		c.metrics.HandleDuration.Observe(time.Since(timer).Seconds())

		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			c.metrics.EventsFailed.WithLabelValues("panic").Inc()
			c.logger.Error("recovered handler panic",
				"subject", msg.Subject,
				"panic", r,
			)
		}
		if err != nil {
			c.recordFailure()
		}
	}()

	var event audit.EventMessage
	if decodeErr := json.Unmarshal(msg.Body, &event); decodeErr != nil {
		// An undecodable payload is a processing failure like any other:
		// it goes to the dead-letter destination for manual inspection.
		c.metrics.EventsFailed.WithLabelValues("decode").Inc()
		c.logger.Error("event payload is not valid JSON",
			"subject", msg.Subject,
			"error", decodeErr,
		)
		return fmt.Errorf("decode event: %w", decodeErr)
	}
	if event.EventID == "" || event.EventType == "" {
		c.metrics.EventsFailed.WithLabelValues("decode").Inc()
		return fmt.Errorf("event is missing eventId or eventType")
	}

	if msg.Deliveries > 1 {
		c.logger.Warn("handling redelivered message",
			"subject", msg.Subject,
			"event_id", event.EventID,
			"deliveries", msg.Deliveries,
		)
	}

	domain := event.Domain()
	c.metrics.EventsConsumed.WithLabelValues(domain).Inc()

	if dispatchErr := c.registry.Dispatch(ctx, &event); dispatchErr != nil {
		c.metrics.EventsFailed.WithLabelValues("handle").Inc()
		c.metrics.EventsDeadLetter.WithLabelValues(domain).Inc()
		// Losing an audit record is itself a security-relevant event.
		logger.Security(ctx, c.logger, "event processing failed, dead-lettering",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", dispatchErr,
		)
		return dispatchErr
	}

	c.metrics.EventsProcessed.WithLabelValues(domain).Inc()
	c.recordProcessed(event.OccurredAt())
	return nil
}

func (c *Consumer) recordProcessed(at time.Time) {
	c.mu.Lock()
	c.state.Processed++
	c.state.LastEventAt = at
	c.mu.Unlock()
}

func (c *Consumer) recordFailure() {
	c.mu.Lock()
	c.state.Failed++
	c.state.DeadLettered++
	c.mu.Unlock()
}
