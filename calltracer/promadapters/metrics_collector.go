// Package promadapters provides a Prometheus implementation of the calltracer metrics interface.
//
//	registry := prometheus.NewRegistry()
//	collector := promadapters.NewMetricsCollector(registry)
//	tracer, err := calltracer.NewTracer(calltracer.WithMetrics(collector))
package promadapters

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

// MetricsCollector implements calltracer.MetricsCollector with Prometheus vectors:
//   - RecordDuration -> HistogramVec, observed in seconds
//   - IncrementCounter -> CounterVec
//   - RecordValue -> GaugeVec
//
// A vector is created and registered on the first call for its metric name, with the label names of
// that call. Later calls with a different label set are dropped.
type MetricsCollector struct {
	registerer prometheus.Registerer
	buckets    []float64
	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithBuckets sets the histogram buckets for duration metrics, prometheus.DefBuckets otherwise.
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) {
		m.buckets = buckets
	}
}

// NewMetricsCollector creates a collector that registers its vectors with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RecordDuration observes duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	histogram := m.getOrCreateHistogram(metric, labels)
	if histogram == nil {
		return
	}

	observer, err := histogram.GetMetricWith(labels)
	if err != nil {
		return
	}

	observer.Observe(duration.Seconds())
}

// IncrementCounter adds one to the counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	counter := m.getOrCreateCounter(metric, labels)
	if counter == nil {
		return
	}

	c, err := counter.GetMetricWith(labels)
	if err != nil {
		return
	}

	c.Inc()
}

// RecordValue sets the gauge to value.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	gauge := m.getOrCreateGauge(metric, labels)
	if gauge == nil {
		return
	}

	g, err := gauge.GetMetricWith(labels)
	if err != nil {
		return
	}

	g.Set(value)
}

func (m *MetricsCollector) getOrCreateHistogram(name string, labels map[string]string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "calltracer invocation duration in seconds",
		Buckets: m.buckets,
	}, labelNames(labels))

	registered, ok := register(m.registerer, histogram).(*prometheus.HistogramVec)
	if !ok {
		return nil
	}

	m.histograms[name] = registered

	return registered
}

func (m *MetricsCollector) getOrCreateCounter(name string, labels map[string]string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[name]; exists {
		return counter
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "calltracer invocation counter",
	}, labelNames(labels))

	registered, ok := register(m.registerer, counter).(*prometheus.CounterVec)
	if !ok {
		return nil
	}

	m.counters[name] = registered

	return registered
}

func (m *MetricsCollector) getOrCreateGauge(name string, labels map[string]string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[name]; exists {
		return gauge
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "calltracer current value",
	}, labelNames(labels))

	registered, ok := register(m.registerer, gauge).(*prometheus.GaugeVec)
	if !ok {
		return nil
	}

	m.gauges[name] = registered

	return registered
}

// register returns the collector to use: c itself, the one registered earlier under the same
// descriptor, or nil when registration failed.
func register(registerer prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	err := registerer.Register(c)
	if err == nil {
		return c
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		return alreadyRegistered.ExistingCollector
	}

	return nil
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Ensure MetricsCollector implements calltracer.MetricsCollector.
var _ calltracer.MetricsCollector = (*MetricsCollector)(nil)
