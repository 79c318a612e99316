// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID is the context key carrying a per-operation correlation id.
const CorrelationID LogContextKey = "correlation_id"

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelationID); id != nil {
		return id.(string)
	}
	return ""
}

// GatewayLogger provides structured logging for remote gateway operations.
type GatewayLogger struct {
	table  string
	logger *Logger
}

// NewGatewayLogger creates a new GatewayLogger for the given table.
func NewGatewayLogger(table string) *GatewayLogger {
	return &GatewayLogger{
		table:  table,
		logger: GlobalLogger,
	}
}

// LogOp logs a gateway operation against the table.
func (l *GatewayLogger) LogOp(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "gateway op", attrs...)
}

// LogError logs a failed gateway operation.
func (l *GatewayLogger) LogError(ctx context.Context, err error, operation string) {
	l.logger.ErrorContext(ctx, "gateway error",
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}

// SyncLogger provides structured logging for client-side sync components
// (feed, story, chat).
type SyncLogger struct {
	component string
	logger    *Logger
}

// NewSyncLogger creates a new SyncLogger for the given component.
func NewSyncLogger(component string) *SyncLogger {
	return &SyncLogger{
		component: component,
		logger:    GlobalLogger,
	}
}

// LogEvent logs a state transition or notable event in a sync component.
func (l *SyncLogger) LogEvent(ctx context.Context, event string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("component", l.component),
		slog.String("event", event),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "sync event", attrs...)
}

// LogError logs a sync component failure.
func (l *SyncLogger) LogError(ctx context.Context, err error, event string) {
	l.logger.ErrorContext(ctx, "sync error",
		slog.String("component", l.component),
		slog.String("event", event),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}
