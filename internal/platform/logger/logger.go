// Package logger configures slog for the audit trail service.
//
// Beyond the standard levels it defines two semantic levels: business, for
// routine audited activity, and security, for sensitive or failed actions.
// Both are informational emissions; the persisted audit trail is the record.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// Custom levels slot between the standard ones so ordinary level filtering
// still behaves: business sits above info, security above warn.
const (
	LevelBusiness = slog.LevelInfo + 2
	LevelSecurity = slog.LevelWarn + 2
)

var levelNames = map[slog.Leveler]string{
	LevelBusiness: "BUSINESS",
	LevelSecurity: "SECURITY",
}

// New returns a JSON slog logger writing to stdout that renders the custom
// level names instead of "INFO+2" style strings.
func New() *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				if name, known := levelNames[level]; known {
					a.Value = slog.StringValue(name)
				}
			}
			return a
		},
	})
	return slog.New(h)
}

// Business logs routine audited activity.
func Business(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelBusiness, msg, args...)
}

// Security logs sensitive or failure activity. Persistence failures also go
// through here because they represent potential audit data loss.
func Security(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelSecurity, msg, args...)
}
