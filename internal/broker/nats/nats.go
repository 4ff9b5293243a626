// Package nats implements the broker contract on top of NATS JetStream.
//
// The input stream plays the role of the durable queue: a durable pull
// consumer with explicit acks and MaxAckPending as the prefetch bound.
// Failed messages are published to the dead-letter stream and terminated
// (Term), never Nak'd back into the consumer, so a poison message cannot
// loop.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"audittrail/internal/broker"
	"audittrail/internal/platform/config"
)

const fetchWait = 5 * time.Second

// Broker consumes audit events from a JetStream stream.
type Broker struct {
	cfg    config.Broker
	logger *slog.Logger

	mu        sync.Mutex
	nc        *nats.Conn
	js        jetstream.JetStream
	consumer  jetstream.Consumer
	connected bool
}

// New builds an unconnected NATS broker.
func New(cfg config.Broker, logger *slog.Logger) *Broker {
	return &Broker{cfg: cfg, logger: logger}
}

// streamName derives the JetStream stream name from the subject root,
// e.g. "audit.events" -> "AUDIT_EVENTS".
func streamName(subject string) string {
	out := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c == '.':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// subjects returns the subject filters this consumer binds to: the full
// wildcard under the subject root, or one filter per configured domain.
func (b *Broker) subjects() []string {
	if len(b.cfg.Domains) == 0 {
		return []string{b.cfg.Topic + ".>"}
	}
	out := make([]string, 0, len(b.cfg.Domains))
	for _, d := range b.cfg.Domains {
		out = append(out, b.cfg.Topic+"."+d+".>")
	}
	return out
}

// Connect opens the NATS connection and declares topology. Calling it while
// connected is a no-op that logs a warning.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		b.logger.Warn("nats broker already connected, ignoring connect")
		return nil
	}

	nc, err := nats.Connect(b.cfg.URLs[0],
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Error("nats connection lost", "error", err)
			b.markDisconnected()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			b.markDisconnected()
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("create jetstream context: %w", err)
	}

	consumer, err := b.declareTopology(ctx, js)
	if err != nil {
		nc.Close()
		return fmt.Errorf("declare nats topology: %w", err)
	}

	b.nc = nc
	b.js = js
	b.consumer = consumer
	b.connected = true
	b.logger.Info("nats broker connected",
		"url", b.cfg.URLs[0],
		"stream", streamName(b.cfg.Topic),
		"subjects", b.subjects(),
		"durable", b.cfg.Group,
	)
	return nil
}

// declareTopology creates, in order: the input stream, the dead-letter
// stream, and the durable pull consumer. Every step is create-if-missing so
// repeated restarts never fail on existing state.
func (b *Broker) declareTopology(ctx context.Context, js jetstream.JetStream) (jetstream.Consumer, error) {
	input := streamName(b.cfg.Topic)
	if _, err := b.ensureStream(ctx, js, jetstream.StreamConfig{
		Name:     input,
		Subjects: []string{b.cfg.Topic + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	}); err != nil {
		return nil, fmt.Errorf("ensure input stream: %w", err)
	}

	if _, err := b.ensureStream(ctx, js, jetstream.StreamConfig{
		Name:     streamName(b.cfg.DeadLetter),
		Subjects: []string{b.cfg.DeadLetter},
	}); err != nil {
		return nil, fmt.Errorf("ensure dead-letter stream: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		Durable:       b.cfg.Group,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: b.cfg.Prefetch,
		// No automatic retry on handler failure: those are dead-lettered and
		// terminated explicitly. The second delivery attempt exists only for
		// messages whose dead-letter publish failed and were left unsettled.
		MaxDeliver:     2,
		FilterSubjects: b.subjects(),
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, input, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensure durable consumer: %w", err)
	}
	return consumer, nil
}

func (b *Broker) ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, cfg.Name)
	if err == nil {
		return stream, nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, err
	}
	return js.CreateStream(ctx, cfg)
}

// Close drains the connection. Safe to call repeatedly.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
		b.js = nil
		b.consumer = nil
	}
	b.connected = false
	return nil
}

// Healthy reports whether the NATS connection is open and live.
func (b *Broker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && b.nc != nil && b.nc.IsConnected()
}

// Consume fetches batches until ctx is cancelled. MaxAckPending caps the
// number of unacknowledged deliveries, so a fetch never outruns the bound.
func (b *Broker) Consume(ctx context.Context, fn broker.HandlerFunc) error {
	b.mu.Lock()
	consumer := b.consumer
	b.mu.Unlock()
	if consumer == nil {
		return fmt.Errorf("nats broker is not connected")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := consumer.Fetch(b.cfg.Prefetch, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("fetch failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range batch.Messages() {
			b.handle(ctx, msg, fn)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			b.logger.Error("fetch batch error", "error", err)
		}
	}
}

// handle runs fn for one message and settles it: Ack on success, dead-letter
// publish followed by Term on failure. A failed dead-letter publish leaves
// the message unsettled so the server redelivers it after AckWait.
func (b *Broker) handle(ctx context.Context, msg jetstream.Msg, fn broker.HandlerFunc) {
	b.mu.Lock()
	js := b.js
	b.mu.Unlock()
	if js == nil {
		return
	}

	deliveries := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		deliveries = meta.NumDelivered
	}

	m := &broker.Message{
		Subject:    msg.Subject(),
		Body:       msg.Data(),
		Deliveries: deliveries,
	}

	if err := fn(ctx, m); err != nil {
		if _, pubErr := js.Publish(ctx, b.cfg.DeadLetter, msg.Data()); pubErr != nil {
			b.logger.Error("dead-letter publish failed, leaving message unsettled",
				"subject", msg.Subject(),
				"error", pubErr,
			)
			return
		}
		if termErr := msg.Term(); termErr != nil {
			b.logger.Error("terminate failed", "subject", msg.Subject(), "error", termErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		b.logger.Error("ack failed", "subject", msg.Subject(), "error", err)
	}
}

func (b *Broker) markDisconnected() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}
