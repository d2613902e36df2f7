package testdoubles

import (
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

// MetricKind tells which MetricsCollector method produced a MetricRecord.
type MetricKind string

const (
	KindDuration MetricKind = "duration"
	KindCounter  MetricKind = "counter"
	KindValue    MetricKind = "value"
)

// MetricsCollectorSpy captures metrics calls in the order they were made.
// It implements only the base calltracer.MetricsCollector, so it also exercises the
// fallback path for collectors without context support.
type MetricsCollectorSpy struct {
	records     []MetricRecord
	mu          sync.Mutex
	recordCalls bool
}

// MetricRecord is one captured call. Duration is set for KindDuration, Value for KindValue.
type MetricRecord struct {
	Kind     MetricKind
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

// NewMetricsCollectorSpy creates a new MetricsCollectorSpy.
// Set recordCalls to true to capture all metrics calls for inspection in tests.
func NewMetricsCollectorSpy(recordCalls bool) *MetricsCollectorSpy {
	return &MetricsCollectorSpy{
		records:     make([]MetricRecord, 0),
		recordCalls: recordCalls,
	}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.record(MetricRecord{Kind: KindDuration, Metric: metric, Duration: duration, Labels: labels})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.record(MetricRecord{Kind: KindCounter, Metric: metric, Labels: labels})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.record(MetricRecord{Kind: KindValue, Metric: metric, Value: value, Labels: labels})
}

func (s *MetricsCollectorSpy) record(r MetricRecord) {
	if !s.recordCalls {
		return
	}

	// the caller may reuse its label map
	r.Labels = maps.Clone(r.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
}

// GetRecords returns a copy of the captured records of the given kind.
func (s *MetricsCollectorSpy) GetRecords(kind MetricKind) []MetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]MetricRecord, 0)
	for _, r := range s.records {
		if r.Kind == kind {
			records = append(records, r)
		}
	}

	return records
}

// CountRecordsForMetric counts the captured records of the given kind and metric.
func (s *MetricsCollectorSpy) CountRecordsForMetric(kind MetricKind, metric string) int {
	return len(s.matching(kind, metric))
}

func (s *MetricsCollectorSpy) matching(kind MetricKind, metric string) []MetricRecord {
	records := s.GetRecords(kind)

	matched := make([]MetricRecord, 0, len(records))
	for _, r := range records {
		if r.Metric == metric {
			matched = append(matched, r)
		}
	}

	return matched
}

// MetricRecordMatcher narrows the records of one metric by label, e.g.
//
//	spy.HasDurationRecordForMetric("calltracer_invocation_duration_seconds").WithFunction("addToCart").Assert()
//
// Assert is true when at least one record carries every requested label.
type MetricRecordMatcher struct {
	candidates []MetricRecord
}

// HasDurationRecordForMetric starts a matcher over the duration records of metric.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.matching(KindDuration, metric)}
}

// HasCounterRecordForMetric starts a matcher over the counter records of metric.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.matching(KindCounter, metric)}
}

func (m *MetricRecordMatcher) WithFunction(function string) *MetricRecordMatcher {
	return m.WithLabel("function", function)
}

func (m *MetricRecordMatcher) WithTag(tag calltracer.Tag) *MetricRecordMatcher {
	return m.WithLabel("tag", string(tag))
}

func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

// WithLabel drops the candidates that do not carry key=value.
func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	kept := m.candidates[:0:0]
	for _, r := range m.candidates {
		if got, ok := r.Labels[key]; ok && got == value {
			kept = append(kept, r)
		}
	}

	m.candidates = kept

	return m
}

func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

var _ calltracer.MetricsCollector = (*MetricsCollectorSpy)(nil)
