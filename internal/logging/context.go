package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const runIDKey contextKey = "run_id"

// WithRun tags ctx with a fresh run id and attaches a logger carrying it.
// Every log line of one pipeline pass can then be correlated.
func WithRun(ctx context.Context, l zerolog.Logger, trigger string) (context.Context, zerolog.Logger) {
	runID := uuid.NewString()
	runLogger := l.With().Str("run_id", runID).Str("trigger", trigger).Logger()
	ctx = context.WithValue(ctx, runIDKey, runID)
	return runLogger.WithContext(ctx), runLogger
}

// RunID returns the run id stored by WithRun, or "".
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the logger attached to ctx, falling back to def.
func FromContext(ctx context.Context, def zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return def
}

// SymbolLogger scopes a logger to one instrument.
func SymbolLogger(l zerolog.Logger, symbol string) zerolog.Logger {
	return l.With().Str("symbol", symbol).Logger()
}
