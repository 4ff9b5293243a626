package kafka

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"

	"audittrail/internal/broker"
	"audittrail/internal/platform/config"
)

// startTestKafka starts an in-process kfake cluster seeded with the input
// and dead-letter topics and returns its seed addresses.
func startTestKafka(t *testing.T) []string {
	t.Helper()
	cluster, err := kfake.NewCluster(
		kfake.NumBrokers(1),
		kfake.SeedTopics(1, "audit.events", "audit.events.dlq"),
	)
	require.NoError(t, err, "starting kfake cluster")
	t.Cleanup(cluster.Close)
	return cluster.ListenAddrs()
}

func testConfig(addrs []string) config.Broker {
	return config.Broker{
		Kind:       config.BrokerKafka,
		URLs:       addrs,
		Topic:      "audit.events",
		Group:      "audit-trail-test",
		DeadLetter: "audit.events.dlq",
		Prefetch:   4,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func produce(t *testing.T, addrs []string, topic string, values ...[]byte) {
	t.Helper()
	cl, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer cl.Close()
	for _, v := range values {
		rec := &kgo.Record{Topic: topic, Value: v}
		require.NoError(t, cl.ProduceSync(context.Background(), rec).FirstErr())
	}
}

// groupOffset returns the committed offset for partition 0, or -1 when none
// has been committed yet.
func groupOffset(t *testing.T, adm *kadm.Client, group, topic string) int64 {
	t.Helper()
	resp, err := adm.FetchOffsets(context.Background(), group)
	if err != nil {
		return -1
	}
	o, ok := resp.Lookup(topic, 0)
	if !ok {
		return -1
	}
	return o.At
}

func TestConnect_Twice_IsNoOp(t *testing.T) {
	addrs := startTestKafka(t)
	ctx := context.Background()

	b := New(testConfig(addrs), testLogger())
	require.NoError(t, b.Connect(ctx))
	defer b.Close()

	require.NoError(t, b.Connect(ctx), "second connect warns instead of erroring")
	assert.True(t, b.Healthy())
}

func TestConnect_TopologyIsIdempotent(t *testing.T) {
	addrs := startTestKafka(t)
	ctx := context.Background()

	// The topics were seeded by the cluster; declaring them again must be
	// treated as success.
	first := New(testConfig(addrs), testLogger())
	require.NoError(t, first.Connect(ctx))
	require.NoError(t, first.Close())

	second := New(testConfig(addrs), testLogger())
	require.NoError(t, second.Connect(ctx))
	require.NoError(t, second.Close())
}

func TestHealthy_FalseAfterClose(t *testing.T) {
	addrs := startTestKafka(t)

	b := New(testConfig(addrs), testLogger())
	assert.False(t, b.Healthy(), "unconnected broker is unhealthy")

	require.NoError(t, b.Connect(context.Background()))
	assert.True(t, b.Healthy())

	require.NoError(t, b.Close())
	assert.False(t, b.Healthy())
	require.NoError(t, b.Close(), "close is safe to repeat")
}

func TestConsume_AcksOnSuccess(t *testing.T) {
	addrs := startTestKafka(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New(testConfig(addrs), testLogger())
	require.NoError(t, b.Connect(ctx))
	defer b.Close()

	produce(t, addrs, "audit.events",
		[]byte(`{"eventType":"order.placed"}`),
		[]byte(`{"eventType":"order.shipped"}`),
	)

	got := make(chan *broker.Message, 2)
	go func() {
		_ = b.Consume(ctx, func(_ context.Context, msg *broker.Message) error {
			got <- msg
			return nil
		})
	}()

	for range 2 {
		select {
		case msg := <-got:
			assert.Equal(t, "audit.events", msg.Subject)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	// Both offsets end up committed for the group.
	adm, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer adm.Close()
	admin := kadm.NewClient(adm)

	require.Eventually(t, func() bool {
		return groupOffset(t, admin, "audit-trail-test", "audit.events") == 2
	}, 10*time.Second, 100*time.Millisecond, "acknowledged offsets should be committed")
}

func TestConsume_HandlerError_DeadLetters(t *testing.T) {
	addrs := startTestKafka(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New(testConfig(addrs), testLogger())
	require.NoError(t, b.Connect(ctx))
	defer b.Close()

	body := []byte(`{"eventType":"payment.failed"}`)
	produce(t, addrs, "audit.events", body)

	deliveries := make(chan struct{}, 4)
	go func() {
		_ = b.Consume(ctx, func(_ context.Context, _ *broker.Message) error {
			deliveries <- struct{}{}
			return errors.New("normalization failed")
		})
	}()

	select {
	case <-deliveries:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for first delivery")
	}

	// The failed record lands on the dead-letter topic, tagged with its
	// source, and its offset is committed so it is never redelivered.
	dlq, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.ConsumeTopics("audit.events.dlq"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer dlq.Close()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 10*time.Second)
	defer fetchCancel()
	recs := dlq.PollFetches(fetchCtx).Records()
	require.Len(t, recs, 1, "failed record should be dead-lettered")
	assert.Equal(t, body, recs[0].Value)

	var source string
	for _, h := range recs[0].Headers {
		if h.Key == "x-dead-letter-source" {
			source = string(h.Value)
		}
	}
	assert.Equal(t, "audit.events", source)

	select {
	case <-deliveries:
		t.Fatal("poison record was redelivered")
	case <-time.After(2 * time.Second):
	}
}

func TestCommitable_WithholdsPartitionTail(t *testing.T) {
	recs := []*kgo.Record{
		{Topic: "audit.events", Partition: 0, Offset: 0},
		{Topic: "audit.events", Partition: 0, Offset: 1},
		{Topic: "audit.events", Partition: 0, Offset: 2},
		{Topic: "audit.events", Partition: 1, Offset: 5},
	}
	withheld := map[topicPartition]int64{
		{topic: "audit.events", partition: 0}: 1,
	}

	got := commitable(recs, withheld)

	// Committing offset 2 would mark the withheld offset 1 consumed, so only
	// the prefix before it survives. The other partition is unaffected.
	require.Len(t, got, 2)
	assert.Equal(t, int64(0), got[0].Offset)
	assert.Equal(t, int32(1), got[1].Partition)
	assert.Equal(t, int64(5), got[1].Offset)
}

func TestCommitable_FirstOffsetWithheld_CommitsNothing(t *testing.T) {
	recs := []*kgo.Record{
		{Topic: "audit.events", Partition: 0, Offset: 3},
		{Topic: "audit.events", Partition: 0, Offset: 4},
	}
	withheld := map[topicPartition]int64{
		{topic: "audit.events", partition: 0}: 3,
	}
	assert.Empty(t, commitable(recs, withheld))
}

func TestCommitable_NothingWithheld_CommitsAll(t *testing.T) {
	recs := []*kgo.Record{
		{Topic: "audit.events", Partition: 0, Offset: 0},
		{Topic: "audit.events", Partition: 0, Offset: 1},
	}
	assert.Len(t, commitable(recs, map[topicPartition]int64{}), 2)
}

func TestTopics_DomainSubset(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Domains = []string{"order", "payment"}
	b := New(cfg, testLogger())
	assert.Equal(t, []string{"audit.events.order", "audit.events.payment"}, b.topics())

	cfg.Domains = nil
	b = New(cfg, testLogger())
	assert.Equal(t, []string{"audit.events"}, b.topics())
}
