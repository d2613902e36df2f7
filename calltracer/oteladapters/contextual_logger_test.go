package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/calltracer-go/calltracer/oteladapters"
)

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("calltracer")
	assert.NotNil(t, logger, "NewSlogBridgeLogger should return non-nil logger")
}

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug, // Capture all levels
	})

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	logger.DebugContext(ctx, "TRACER <test_function>{}</test_function>", "tag", "test_function")
	logger.InfoContext(ctx, "Skipped fetchCatalog no network", "tag", "skipped_test")
	logger.WarnContext(ctx, "TRACER Failed to save call trace - clock stopped")
	logger.ErrorContext(ctx, "TRACER <test>{}</test>", "tag", "test")

	output := buf.String()

	assert.Contains(t, output, "TRACER <test_function>{}</test_function>")
	assert.Contains(t, output, "Skipped fetchCatalog no network")
	assert.Contains(t, output, "TRACER Failed to save call trace - clock stopped")
	assert.Contains(t, output, "TRACER <test>{}</test>")

	assert.Contains(t, output, `"level":"DEBUG"`)
	assert.Contains(t, output, `"level":"INFO"`)
	assert.Contains(t, output, `"level":"WARN"`)
	assert.Contains(t, output, `"level":"ERROR"`)
	assert.Contains(t, output, `"tag":"skipped_test"`)
}

type recordingLogger struct {
	embedded.Logger
	records []log.Record
}

func (l *recordingLogger) Emit(_ context.Context, record log.Record) {
	l.records = append(l.records, record.Clone())
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

func Test_OTelLogger_EmitsTraceLinesAsRecords(t *testing.T) {
	// arrange
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "TRACER <test_function>{}</test_function>", "invocation_id", "42", "tag", "test_function")
	logger.InfoContext(ctx, "Skipped fetchCatalog no network")
	logger.WarnContext(ctx, "TRACER Failed to save call trace - clock stopped")
	logger.ErrorContext(ctx, "TRACER <test>{}</test>", "attempt", 2, "flaky", true)

	// assert
	require.Len(t, recorder.records, 4)

	severities := make([]log.Severity, 0, 4)
	for _, record := range recorder.records {
		severities = append(severities, record.Severity())
	}
	assert.Equal(t, []log.Severity{log.SeverityDebug, log.SeverityInfo, log.SeverityWarn, log.SeverityError}, severities)

	first := recorder.records[0]
	assert.Equal(t, "TRACER <test_function>{}</test_function>", first.Body().AsString())
	assert.Equal(t, "DEBUG", first.SeverityText())
	assert.Equal(t, map[string]string{"invocation_id": "42", "tag": "test_function"}, attributesOf(first))

	kinds := make(map[string]log.Kind)
	recorder.records[3].WalkAttributes(func(kv log.KeyValue) bool {
		kinds[kv.Key] = kv.Value.Kind()
		return true
	})
	assert.Equal(t, map[string]log.Kind{"attempt": log.KindInt64, "flaky": log.KindBool}, kinds)
}

func attributesOf(record log.Record) map[string]string {
	attrs := make(map[string]string)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})

	return attrs
}

func Test_OTelLogger_ArgumentHandling(t *testing.T) {
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("calltracer"))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.InfoContext(ctx, "message", "string", "text", "number", 123, "boolean", false)
	}, "Multiple args should not panic")

	assert.NotPanics(t, func() {
		logger.InfoContext(ctx, "message", "key1", "value1", "key2")
	}, "Odd number of args should not panic")

	assert.NotPanics(t, func() {
		logger.InfoContext(ctx, "message", 42, "value")
	}, "Non-string keys should not panic")
}
