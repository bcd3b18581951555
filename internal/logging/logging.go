package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

const redacted = "[REDACTED]"

// sensitiveKeys never reach the log output with their value. Merchant keys
// and admin credentials travel through the same structs that get logged on
// settings changes and seed loading.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"secret_key":    true,
	"password":      true,
	"password_hash": true,
	"authorization": true,
}

func Init(service, level, appEnv string) *slog.Logger {
	logger := slog.New(newHandler(os.Stdout, level, appEnv)).With("service", service)
	slog.SetDefault(logger)
	return logger
}

func newHandler(w io.Writer, level, appEnv string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactAttr,
	}
	if appEnv == "development" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// With returns ctx carrying the request logger enriched with args, e.g. the
// order and merchant a webhook resolved to.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := FromContext(ctx).With(args...)
	return WithLogger(ctx, l), l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
