// Package oteladapters provides OpenTelemetry adapters for the calltracer observability interfaces.
// Trace lines logged through these adapters carry the trace and span of the context that was
// passed to the traced function, so test steps show up next to the spans they ran in.
package oteladapters

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

// SlogBridgeLogger is a calltracer.ContextualLogger on top of the OpenTelemetry slog bridge.
// *slog.Logger already has the four context methods, so embedding it is all it takes.
type SlogBridgeLogger struct {
	*slog.Logger
}

// NewSlogBridgeLogger creates a contextual logger on the global OpenTelemetry LoggerProvider.
func NewSlogBridgeLogger(name string) *SlogBridgeLogger {
	return &SlogBridgeLogger{Logger: otelslog.NewLogger(name)}
}

// NewSlogBridgeLoggerWithHandler creates a contextual logger on the provided slog.Handler.
// Trace correlation then depends on the handler.
func NewSlogBridgeLoggerWithHandler(handler slog.Handler) *SlogBridgeLogger {
	return &SlogBridgeLogger{Logger: slog.New(handler)}
}

var _ calltracer.ContextualLogger = (*SlogBridgeLogger)(nil)

// OTelLogger emits trace lines as OpenTelemetry log records without going through slog.
// The line is the record body, the key-value args (invocation_id, tag) become attributes.
type OTelLogger struct {
	logger log.Logger
}

// NewOTelLogger creates a contextual logger that emits records on logger.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelDebug, msg, args)
}

func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelInfo, msg, args)
}

func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelWarn, msg, args)
}

func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelError, msg, args)
}

// emit pairs args like slog does; a trailing key without value and non-string keys are dropped.
func (l *OTelLogger) emit(ctx context.Context, level slog.Level, msg string, args []any) {
	var record log.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(severity(level))
	record.SetSeverityText(level.String())
	record.SetBody(log.StringValue(msg))

	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			record.AddAttributes(keyValue(key, args[i+1]))
		}
	}

	l.logger.Emit(ctx, record)
}

func severity(level slog.Level) log.Severity {
	switch {
	case level >= slog.LevelError:
		return log.SeverityError
	case level >= slog.LevelWarn:
		return log.SeverityWarn
	case level >= slog.LevelInfo:
		return log.SeverityInfo
	default:
		return log.SeverityDebug
	}
}

func keyValue(key string, v any) log.KeyValue {
	switch value := v.(type) {
	case string:
		return log.String(key, value)
	case bool:
		return log.Bool(key, value)
	case int:
		return log.Int(key, value)
	case int64:
		return log.Int64(key, value)
	case float64:
		return log.Float64(key, value)
	default:
		return log.String(key, slog.AnyValue(v).String())
	}
}

var _ calltracer.ContextualLogger = (*OTelLogger)(nil)
