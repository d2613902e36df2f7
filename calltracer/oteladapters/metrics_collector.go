package oteladapters

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

// descriptions of the metrics a Tracer records; other metric names get no description.
var descriptions = map[string]string{
	"calltracer_invocation_duration_seconds":    "Duration of traced calls, floored to whole seconds.",
	"calltracer_invocations_total":              "Traced calls by function, tag and status.",
	"calltracer_instrumentation_failures_total": "Traced calls whose trace line could not be produced.",
	"calltracer_wrapped_members":                "Members wrapped by the last ApplyToType or AutoTrace on a type.",
	"tracestore_operation_duration_seconds":     "Duration of trace store database operations.",
}

// MetricsCollector implements calltracer.MetricsCollector and calltracer.ContextualMetricsCollector
// on an OpenTelemetry meter: durations go to Float64Histograms (seconds), counters to
// Int64Counters and values to Float64Gauges.
//
// Instruments are created on first use. A MetricsCollector is safe for concurrent use.
// Instruments the meter refuses to create are not retried, their measurements are dropped.
type MetricsCollector struct {
	meter      metric.Meter
	histograms instruments[metric.Float64Histogram]
	counters   instruments[metric.Int64Counter]
	gauges     instruments[metric.Float64Gauge]
}

// NewMetricsCollector creates a new OpenTelemetry metrics collector.
// The meter should be created from your OpenTelemetry MeterProvider.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{meter: meter}
}

func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

func (m *MetricsCollector) RecordDurationContext(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	histogram, ok := m.histograms.get(metricName, func() (metric.Float64Histogram, error) {
		return m.meter.Float64Histogram(metricName, metric.WithDescription(descriptions[metricName]), metric.WithUnit("s"))
	})
	if ok {
		histogram.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attributeSet(labels)))
	}
}

func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter, ok := m.counters.get(metricName, func() (metric.Int64Counter, error) {
		return m.meter.Int64Counter(metricName, metric.WithDescription(descriptions[metricName]))
	})
	if ok {
		counter.Add(ctx, 1, metric.WithAttributeSet(attributeSet(labels)))
	}
}

func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

func (m *MetricsCollector) RecordValueContext(ctx context.Context, metricName string, value float64, labels map[string]string) {
	gauge, ok := m.gauges.get(metricName, func() (metric.Float64Gauge, error) {
		return m.meter.Float64Gauge(metricName, metric.WithDescription(descriptions[metricName]))
	})
	if ok {
		gauge.Record(ctx, value, metric.WithAttributeSet(attributeSet(labels)))
	}
}

func attributeSet(labels map[string]string) attribute.Set {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return attribute.NewSet(attrs...)
}

// instruments caches one instrument per metric name. A failed creation is cached as absent.
type instruments[T any] struct {
	mu     sync.Mutex
	byName map[string]*T
}

func (i *instruments[T]) get(name string, create func() (T, error)) (T, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.byName == nil {
		i.byName = make(map[string]*T)
	}

	if cached, exists := i.byName[name]; exists {
		if cached == nil {
			var zero T
			return zero, false
		}

		return *cached, true
	}

	instrument, err := create()
	if err != nil {
		i.byName[name] = nil
		return instrument, false
	}

	i.byName[name] = &instrument

	return instrument, true
}

var (
	_ calltracer.MetricsCollector           = (*MetricsCollector)(nil)
	_ calltracer.ContextualMetricsCollector = (*MetricsCollector)(nil)
)
