package calltracer

import (
	"time"
)

// Tracer owns the observability sinks and the classification rules shared by every
// function it wraps. It is read-only after NewTracer returns.
type Tracer struct {
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	classifier       Classifier
	clock            func() time.Time
}

// Option defines a functional option for configuring a Tracer.
type Option func(*Tracer) error

// NewTracer creates a Tracer with go test conventions and the wall clock, plus the given options.
// Without a logger the Tracer still wraps functions but emits nothing.
func NewTracer(options ...Option) (*Tracer, error) {
	t := &Tracer{
		classifier: Classifier{Conventions: GoTestConventions()},
		clock:      time.Now,
	}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// WithLogger sets the logger for the Tracer.
// The logger will receive messages at different levels:
//
// Debug level: one trace line per traced call
// Info level: skip notices
// Warn level: failures of the tracing itself, which are never propagated
// Error level: the trace line of a failed call tagged "test".
func WithLogger(logger Logger) Option {
	return func(t *Tracer) error {
		t.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Tracer.
// It receives the same lines as the Logger, together with the first context.Context argument
// of the traced call, which enables trace/span correlation.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(t *Tracer) error {
		t.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Tracer.
// It receives invocation durations and counts labeled by function, tag, and status,
// and a counter of tracing failures.
func WithMetrics(collector MetricsCollector) Option {
	return func(t *Tracer) error {
		t.metricsCollector = collector
		return nil
	}
}

// WithClock replaces the wall clock used for start timestamps and durations.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracer) error {
		if clock == nil {
			return ErrNilClock
		}

		t.clock = clock

		return nil
	}
}

// WithConventions replaces the go test runner conventions used for classification.
func WithConventions(conventions Conventions) Option {
	return func(t *Tracer) error {
		if err := conventions.Validate(); err != nil {
			return err
		}

		t.classifier.Conventions = conventions

		return nil
	}
}

// WithSourceRoot sets the installation root marker that is stripped from source locations.
func WithSourceRoot(root string) Option {
	return func(t *Tracer) error {
		t.classifier.SourceRoot = root
		return nil
	}
}
