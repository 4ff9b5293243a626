package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func event(eventType string) *audit.EventMessage {
	return &audit.EventMessage{EventID: "evt-1", EventType: eventType}
}

func TestDispatch_ExactMatch(t *testing.T) {
	var called string
	reg := New(testLogger(), func(_ context.Context, ev *audit.EventMessage) error {
		called = "default"
		return nil
	})
	reg.Register("order.placed", func(_ context.Context, ev *audit.EventMessage) error {
		called = "order.placed"
		return nil
	})
	reg.Register(Wildcard, func(_ context.Context, ev *audit.EventMessage) error {
		called = "wildcard"
		return nil
	})

	require.NoError(t, reg.Dispatch(context.Background(), event("order.placed")))
	assert.Equal(t, "order.placed", called)
}

func TestDispatch_WildcardFallback(t *testing.T) {
	var called string
	reg := New(testLogger(), func(_ context.Context, _ *audit.EventMessage) error {
		called = "default"
		return nil
	})
	reg.Register(Wildcard, func(_ context.Context, _ *audit.EventMessage) error {
		called = "wildcard"
		return nil
	})

	require.NoError(t, reg.Dispatch(context.Background(), event("review.flagged")))
	assert.Equal(t, "wildcard", called)
}

func TestDispatch_DefaultFallback(t *testing.T) {
	var got *audit.EventMessage
	reg := New(testLogger(), func(_ context.Context, ev *audit.EventMessage) error {
		got = ev
		return nil
	})

	require.NoError(t, reg.Dispatch(context.Background(), event("unmapped.event")))
	require.NotNil(t, got, "unmapped event types still reach the default handler")
	assert.Equal(t, "unmapped.event", got.EventType)
}

func TestRegister_LastWins(t *testing.T) {
	var called string
	reg := New(testLogger(), func(_ context.Context, _ *audit.EventMessage) error { return nil })
	reg.Register("user.created", func(_ context.Context, _ *audit.EventMessage) error {
		called = "first"
		return nil
	})
	reg.Register("user.created", func(_ context.Context, _ *audit.EventMessage) error {
		called = "second"
		return nil
	})

	require.NoError(t, reg.Dispatch(context.Background(), event("user.created")))
	assert.Equal(t, "second", called)
}

func TestDispatch_PropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("store unavailable")
	reg := New(testLogger(), func(_ context.Context, _ *audit.EventMessage) error { return nil })
	reg.Register("payment.failed", func(_ context.Context, _ *audit.EventMessage) error {
		return wantErr
	})

	err := reg.Dispatch(context.Background(), event("payment.failed"))
	assert.ErrorIs(t, err, wantErr)
}
