package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/calltracer-go/calltracer/oteladapters"
)

func givenCollector() (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("calltracer")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics), "Failed to collect metrics")

	return resourceMetrics
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	collector, reader := givenCollector()
	labels := map[string]string{
		"function": "addToCart",
		"tag":      "test_function",
		"status":   "success",
	}

	collector.RecordDuration("calltracer_invocation_duration_seconds", 1500*time.Millisecond, labels)

	histogram := findMetric[metricdata.Histogram[float64]](t, collect(t, reader), "calltracer_invocation_duration_seconds")
	require.Len(t, histogram.DataPoints, 1, "Expected exactly one data point")

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 1.5, dataPoint.Sum, 0.001, "Histogram sum should be 1.5 seconds")

	expectedAttrs := attribute.NewSet(
		attribute.String("function", "addToCart"),
		attribute.String("tag", "test_function"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs), "Attributes should match")
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	collector, reader := givenCollector()
	labels := map[string]string{"function": "addToCart", "status": "failure"}

	collector.IncrementCounter("calltracer_invocations_total", labels)
	collector.IncrementCounterContext(context.Background(), "calltracer_invocations_total", labels)
	collector.IncrementCounter("calltracer_invocations_total", labels)

	counter := findMetric[metricdata.Sum[int64]](t, collect(t, reader), "calltracer_invocations_total")
	require.Len(t, counter.DataPoints, 1, "Expected exactly one data point")
	assert.Equal(t, int64(3), counter.DataPoints[0].Value, "Counter should have been incremented 3 times")
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	collector, reader := givenCollector()

	collector.RecordValue("calltracer_wrapped_members", 4, map[string]string{"type": "CartSteps"})
	collector.RecordValueContext(context.Background(), "calltracer_wrapped_members", 5, map[string]string{"type": "CartSteps"})

	gauge := findMetric[metricdata.Gauge[float64]](t, collect(t, reader), "calltracer_wrapped_members")
	require.Len(t, gauge.DataPoints, 1, "Expected exactly one data point")
	assert.Equal(t, 5.0, gauge.DataPoints[0].Value, "Gauge keeps the last value")
}

func Test_MetricsCollector_ConcurrentInstrumentCreation(t *testing.T) {
	collector, reader := givenCollector()
	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			collector.IncrementCounter("calltracer_invocations_total", map[string]string{"status": "success"})
			collector.RecordDuration("calltracer_invocation_duration_seconds", time.Second, nil)
		}()
	}

	wg.Wait()

	resourceMetrics := collect(t, reader)
	assert.Equal(t, int64(16), findMetric[metricdata.Sum[int64]](t, resourceMetrics, "calltracer_invocations_total").DataPoints[0].Value)
	assert.Equal(t, uint64(16), findMetric[metricdata.Histogram[float64]](t, resourceMetrics, "calltracer_invocation_duration_seconds").DataPoints[0].Count)
}

func Test_MetricsCollector_DescribesTracerMetrics(t *testing.T) {
	collector, reader := givenCollector()

	collector.IncrementCounter("calltracer_instrumentation_failures_total", map[string]string{"function": "addToCart"})
	collector.IncrementCounter("shop_orders_total", nil)

	descriptions := make(map[string]string)
	for _, scopeMetrics := range collect(t, reader).ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			descriptions[m.Name] = m.Description
		}
	}

	assert.Equal(t, "Traced calls whose trace line could not be produced.", descriptions["calltracer_instrumentation_failures_total"])
	assert.Contains(t, descriptions, "shop_orders_total")
	assert.Empty(t, descriptions["shop_orders_total"])
}

func findMetric[T any](t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) T {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if data, ok := m.Data.(T); ok && m.Name == name {
				return data
			}
		}
	}

	var zero T
	t.Fatalf("metric %s of type %T not found", name, zero)

	return zero
}
