package calltracer

import (
	"context"
	"fmt"
	"time"
)

const (
	logMsgSkipped                 = "Skipped "
	logMsgTraceFailed             = "TRACER Failed to save call trace - "
	logAttrInvocationID           = "invocation_id"
	logAttrTag                    = "tag"
	metricInvocationDuration      = "calltracer_invocation_duration_seconds"
	metricInvocations             = "calltracer_invocations_total"
	metricInstrumentationFailures = "calltracer_instrumentation_failures_total"
	metricWrappedMembers          = "calltracer_wrapped_members"
	labelFunction                 = "function"
	labelType                     = "type"
	labelTag                      = "tag"
	labelStatus                   = "status"
)

// logSkipped logs the skip notice at info level.
func (t *Tracer) logSkipped(ctx context.Context, inv *invocation, record InvocationRecord) {
	msg := logMsgSkipped + record.FunctionName + " " + record.Message

	if t.logger != nil {
		t.logger.Info(msg, logAttrInvocationID, inv.id, logAttrTag, string(record.Tag))
	}

	if t.contextualLogger != nil {
		t.contextualLogger.InfoContext(ctx, msg, logAttrInvocationID, inv.id, logAttrTag, string(record.Tag))
	}
}

// logTraceLine logs the trace line at error level for a failed test, at debug level otherwise.
func (t *Tracer) logTraceLine(ctx context.Context, inv *invocation, record InvocationRecord, line string) {
	failedTest := record.Tag == TagTest && record.HadTraceback

	if t.logger != nil {
		if failedTest {
			t.logger.Error(line, logAttrInvocationID, inv.id, logAttrTag, string(record.Tag))
		} else {
			t.logger.Debug(line, logAttrInvocationID, inv.id, logAttrTag, string(record.Tag))
		}
	}

	if t.contextualLogger != nil {
		if failedTest {
			t.contextualLogger.ErrorContext(ctx, line, logAttrInvocationID, inv.id, logAttrTag, string(record.Tag))
		} else {
			t.contextualLogger.DebugContext(ctx, line, logAttrInvocationID, inv.id, logAttrTag, string(record.Tag))
		}
	}
}

// logInstrumentationFailure logs a failure of the tracing itself at warn level.
// A sink that fails again in here is ignored.
func (t *Tracer) logInstrumentationFailure(inv *invocation, cause error) {
	defer func() {
		_ = recover()
	}()

	msg := logMsgTraceFailed + cause.Error()

	if t.logger != nil {
		t.logger.Warn(msg, logAttrInvocationID, inv.id)
	}

	if t.contextualLogger != nil {
		t.contextualLogger.WarnContext(context.Background(), msg, logAttrInvocationID, inv.id)
	}

	if t.metricsCollector != nil {
		t.metricsCollector.IncrementCounter(metricInstrumentationFailures, map[string]string{
			labelFunction: inv.cfg.FunctionName,
		})
	}
}

// recordInvocationMetrics records duration and count of one traced call if the metrics collector is configured.
func (t *Tracer) recordInvocationMetrics(ctx context.Context, record InvocationRecord, elapsed time.Duration) {
	if t.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelFunction: record.FunctionName,
		labelTag:      string(record.Tag),
		labelStatus:   record.Status(),
	}

	// Use context-aware methods if available
	if contextualCollector, ok := t.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricInvocationDuration, elapsed, labels)
		contextualCollector.IncrementCounterContext(ctx, metricInvocations, labels)

		return
	}

	t.metricsCollector.RecordDuration(metricInvocationDuration, elapsed, labels)
	t.metricsCollector.IncrementCounter(metricInvocations, labels)
}

// recordWrappedMembers records how many function members one bulk application wrapped.
func (t *Tracer) recordWrappedMembers(typeName string, wrapped int) {
	if t.metricsCollector == nil {
		return
	}

	t.metricsCollector.RecordValue(metricWrappedMembers, float64(wrapped), map[string]string{
		labelType: typeName,
	})
}

// String renders the record the way it appears inside a trace line, without stack or arguments.
func (r InvocationRecord) String() string {
	line, err := renderLine(r, nil, nil)
	if err != nil {
		return fmt.Sprintf("%s<%s>%s</%s>", linePrefix, r.Tag, r.FunctionName, r.Tag)
	}

	return line
}
