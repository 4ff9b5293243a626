// Package kafka implements the broker contract on top of a Kafka consumer
// group using franz-go.
//
// Dead-lettering is modeled as a produce to the dead-letter topic followed by
// an offset commit: the message leaves the input topic's unprocessed range
// and is never redelivered to this group. When a dead-letter produce fails,
// the record's offset and every later offset on its partition are withheld
// from the commit so the broker redelivers them.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"audittrail/internal/broker"
	"audittrail/internal/platform/config"
)

// Broker consumes audit events from Kafka topics.
type Broker struct {
	cfg    config.Broker
	logger *slog.Logger

	mu        sync.Mutex
	client    *kgo.Client
	connected bool
}

// New builds an unconnected Kafka broker.
func New(cfg config.Broker, logger *slog.Logger) *Broker {
	return &Broker{cfg: cfg, logger: logger}
}

// topics returns the input topics this consumer binds to: one per configured
// domain prefix, or the single root topic when no subset is configured.
func (b *Broker) topics() []string {
	if len(b.cfg.Domains) == 0 {
		return []string{b.cfg.Topic}
	}
	out := make([]string, 0, len(b.cfg.Domains))
	for _, d := range b.cfg.Domains {
		out = append(out, b.cfg.Topic+"."+d)
	}
	return out
}

// Connect opens the consumer group session and declares topology. Calling it
// while connected is a no-op that logs a warning.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		b.logger.Warn("kafka broker already connected, ignoring connect")
		return nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.URLs...),
		kgo.ConsumerGroup(b.cfg.Group),
		kgo.ConsumeTopics(b.topics()...),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return fmt.Errorf("kafka unreachable: %w", err)
	}

	if err := b.declareTopology(ctx, client); err != nil {
		client.Close()
		return fmt.Errorf("declare kafka topology: %w", err)
	}

	b.client = client
	b.connected = true
	b.logger.Info("kafka broker connected",
		"brokers", b.cfg.URLs,
		"topics", b.topics(),
		"group", b.cfg.Group,
	)
	return nil
}

// declareTopology creates the input and dead-letter topics if they do not
// exist. "Already exists" responses are success: re-running topology on every
// connect must never fail a restart.
func (b *Broker) declareTopology(ctx context.Context, client *kgo.Client) error {
	admin := kadm.NewClient(client)

	wanted := append(b.topics(), b.cfg.DeadLetter)
	resps, err := admin.CreateTopics(ctx, -1, -1, nil, wanted...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Close shuts the client down. Safe to call repeatedly.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
	b.connected = false
	return nil
}

// Healthy reports whether the consumer session is live.
func (b *Broker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && b.client != nil
}

// Consume polls fetches until ctx is cancelled. Records within one poll are
// handled concurrently up to the prefetch bound; the poll's offsets are
// committed only after every record has been acknowledged or dead-lettered.
func (b *Broker) Consume(ctx context.Context, fn broker.HandlerFunc) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return fmt.Errorf("kafka broker is not connected")
	}

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			b.markDisconnected()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			b.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		records := fetches.Records()
		if len(records) > 0 {
			b.handleRecords(ctx, client, records, fn)
		}

		client.AllowRebalance()
	}
}

type topicPartition struct {
	topic     string
	partition int32
}

// handleRecords runs fn for each record under the prefetch bound, then
// commits. Kafka commits mark everything below the committed offset as
// consumed, so a withheld record blocks the commit of every later record on
// its partition: only the per-partition prefix before the lowest withheld
// offset is committed, and the rest is redelivered with it.
func (b *Broker) handleRecords(ctx context.Context, client *kgo.Client, records []*kgo.Record, fn broker.HandlerFunc) {
	var (
		mu       sync.Mutex
		withheld = make(map[topicPartition]int64)
	)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(b.cfg.Prefetch)

	for _, rec := range records {
		g.Go(func() error {
			msg := &broker.Message{
				Subject: rec.Topic,
				Key:     string(rec.Key),
				Body:    rec.Value,
			}
			if err := fn(gctx, msg); err != nil {
				if dlqErr := b.deadLetter(gctx, client, rec); dlqErr != nil {
					b.logger.Error("dead-letter produce failed, withholding offset",
						"topic", rec.Topic,
						"partition", rec.Partition,
						"offset", rec.Offset,
						"error", dlqErr,
					)
					tp := topicPartition{rec.Topic, rec.Partition}
					mu.Lock()
					if low, ok := withheld[tp]; !ok || rec.Offset < low {
						withheld[tp] = rec.Offset
					}
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	commit := commitable(records, withheld)
	if len(commit) == 0 {
		return
	}
	if err := client.CommitRecords(ctx, commit...); err != nil {
		b.logger.Error("commit offsets failed", "error", err)
	}
}

// commitable filters records to those safe to commit: on a partition with a
// withheld offset, only records strictly before it. Committing anything at or
// past the withheld offset would mark it consumed and lose the event.
func commitable(records []*kgo.Record, withheld map[topicPartition]int64) []*kgo.Record {
	commit := records[:0:0]
	for _, rec := range records {
		if low, ok := withheld[topicPartition{rec.Topic, rec.Partition}]; ok && rec.Offset >= low {
			continue
		}
		commit = append(commit, rec)
	}
	return commit
}

// deadLetter produces the failed record to the dead-letter topic.
func (b *Broker) deadLetter(ctx context.Context, client *kgo.Client, rec *kgo.Record) error {
	dlq := &kgo.Record{
		Topic: b.cfg.DeadLetter,
		Key:   rec.Key,
		Value: rec.Value,
		Headers: append(rec.Headers, kgo.RecordHeader{
			Key: "x-dead-letter-source", Value: []byte(rec.Topic),
		}),
	}
	return client.ProduceSync(ctx, dlq).FirstErr()
}

func (b *Broker) markDisconnected() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}
