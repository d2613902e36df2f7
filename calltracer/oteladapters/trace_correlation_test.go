package oteladapters_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
	"github.com/AntonStoeckl/calltracer-go/calltracer/oteladapters"
)

// spanRecordingHandler is a slog.Handler that remembers the trace ID found in the context of every record.
type spanRecordingHandler struct {
	mu       sync.Mutex
	traceIDs map[string]string
}

func (h *spanRecordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *spanRecordingHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.traceIDs[record.Message] = trace.SpanContextFromContext(ctx).TraceID().String()

	return nil
}

func (h *spanRecordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *spanRecordingHandler) WithGroup(string) slog.Handler { return h }

func placeOrder(_ context.Context, sku string) error {
	if sku == "" {
		return errors.New("empty sku")
	}

	return nil
}

func Test_Tracer_CorrelatesTraceLinesWithTheCallersSpan(t *testing.T) {
	// arrange
	tracerProvider := sdktrace.NewTracerProvider()
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	handler := &spanRecordingHandler{traceIDs: make(map[string]string)}
	collector, reader := givenCollector()

	tracer, err := calltracer.NewTracer(
		calltracer.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(handler)),
		calltracer.WithMetrics(collector),
	)
	require.NoError(t, err)

	wrapped, err := calltracer.Wrap(tracer, placeOrder)
	require.NoError(t, err)

	ctx, span := tracerProvider.Tracer("checkout").Start(context.Background(), "place-order")

	// act
	orderErr := wrapped(ctx, "")
	span.End()

	// assert
	assert.EqualError(t, orderErr, "empty sku")

	require.Len(t, handler.traceIDs, 1)
	for message, traceID := range handler.traceIDs {
		assert.True(t, strings.HasPrefix(message, "TRACER <test_function>"), message)
		assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	}

	counter := findCounterMetric(t, collect(t, reader), "calltracer_invocations_total")
	require.Len(t, counter.DataPoints, 1)
	status, ok := counter.DataPoints[0].Attributes.Value("status")
	require.True(t, ok)
	assert.Equal(t, "failure", status.AsString())
}
