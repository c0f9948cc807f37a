package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID stores a reconcile run ID in the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID extracts the run ID from the context.
// Returns empty string if not set.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// GenerateRunID creates a new run ID in the format "run_<action>_<unix timestamp>".
func GenerateRunID(action string) string {
	return fmt.Sprintf("run_%s_%d", action, time.Now().Unix())
}

// LogAttrsFromContext extracts the run_id from context and returns it as
// slog attributes. Only non-empty values are included.
func LogAttrsFromContext(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	return attrs
}
