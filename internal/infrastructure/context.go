package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	runIDKey
)

// WithTraceID stores the request or run trace ID on ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID stored on ctx, or "".
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// EnsureTraceID returns ctx unchanged when it already carries a trace ID and
// a copy with a fresh UUID otherwise.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, uuid.NewString())
}

// WithRunID tags ctx with a pipeline run ID. Loggers built by NewLogger add
// it to every record written with that context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID returns the run ID stored on ctx, or "".
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// LoggerFromContext is the global logger with the IDs on ctx bound as
// attributes, for code that hands a logger to something without a context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	var attrs []any
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	if id := GetRunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	if len(attrs) == 0 {
		return GetLogger()
	}
	return GetLogger().With(attrs...)
}

// WithComponent tags logger (or the global logger when nil) with a
// component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	return logger.With(slog.String("component", component))
}
