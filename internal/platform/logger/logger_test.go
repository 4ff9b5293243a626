package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if level, ok := a.Value.Any().(slog.Level); ok {
					if name, known := levelNames[level]; known {
						a.Value = slog.StringValue(name)
					}
				}
			}
			return a
		},
	})
	return slog.New(h)
}

func TestBusinessLevelName(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	Business(context.Background(), l, "order placed", "order_id", "o1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "BUSINESS", line["level"])
	assert.Equal(t, "order placed", line["msg"])
	assert.Equal(t, "o1", line["order_id"])
}

func TestSecurityLevelName(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	Security(context.Background(), l, "login failed", "user_id", "u1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "SECURITY", line["level"])
}

func TestLevelOrdering(t *testing.T) {
	assert.Greater(t, LevelBusiness, slog.LevelInfo)
	assert.Less(t, LevelBusiness, slog.LevelWarn)
	assert.Greater(t, LevelSecurity, slog.LevelWarn)
	assert.Less(t, LevelSecurity, slog.LevelError)
}
