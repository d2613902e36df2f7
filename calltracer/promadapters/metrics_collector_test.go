package promadapters_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
	"github.com/AntonStoeckl/calltracer-go/calltracer/promadapters"
)

func givenCollector(options ...promadapters.Option) (*promadapters.MetricsCollector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()

	return promadapters.NewMetricsCollector(registry, options...), registry
}

func invocationLabels(status string) map[string]string {
	return map[string]string{
		"function": "addToCart",
		"tag":      "test_function",
		"status":   status,
	}
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	collector, registry := givenCollector()

	collector.IncrementCounter("calltracer_invocations_total", invocationLabels("success"))
	collector.IncrementCounter("calltracer_invocations_total", invocationLabels("success"))
	collector.IncrementCounter("calltracer_invocations_total", invocationLabels("failure"))

	expected := `
# HELP calltracer_invocations_total calltracer invocation counter
# TYPE calltracer_invocations_total counter
calltracer_invocations_total{function="addToCart",status="failure",tag="test_function"} 1
calltracer_invocations_total{function="addToCart",status="success",tag="test_function"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "calltracer_invocations_total"))
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	collector, registry := givenCollector()

	collector.RecordValue("calltracer_wrapped_members", 3, map[string]string{"type": "CartSteps"})
	collector.RecordValue("calltracer_wrapped_members", 2, map[string]string{"type": "CartSteps"})

	expected := `
# HELP calltracer_wrapped_members calltracer current value
# TYPE calltracer_wrapped_members gauge
calltracer_wrapped_members{type="CartSteps"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "calltracer_wrapped_members"))
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	collector, registry := givenCollector(promadapters.WithBuckets([]float64{1, 2, 5}))

	collector.RecordDuration("calltracer_invocation_duration_seconds", 1500*time.Millisecond, invocationLabels("success"))
	collector.RecordDuration("calltracer_invocation_duration_seconds", 3*time.Second, invocationLabels("success"))

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)

	histogram := families[0].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 4.5, histogram.GetSampleSum(), 0.001)
	require.Len(t, histogram.GetBucket(), 3)
	assert.Equal(t, uint64(0), histogram.GetBucket()[0].GetCumulativeCount())
	assert.Equal(t, uint64(1), histogram.GetBucket()[1].GetCumulativeCount())
	assert.Equal(t, uint64(2), histogram.GetBucket()[2].GetCumulativeCount())
}

func Test_MetricsCollector_DropsMismatchingLabelSets(t *testing.T) {
	collector, registry := givenCollector()

	collector.IncrementCounter("calltracer_instrumentation_failures_total", map[string]string{"function": "addToCart"})
	collector.IncrementCounter("calltracer_instrumentation_failures_total", map[string]string{"type": "CartSteps"})

	count, err := testutil.GatherAndCount(registry, "calltracer_instrumentation_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_MetricsCollector_SharesVectorsAcrossCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := promadapters.NewMetricsCollector(registry)
	second := promadapters.NewMetricsCollector(registry)

	first.IncrementCounter("calltracer_invocations_total", invocationLabels("success"))
	second.IncrementCounter("calltracer_invocations_total", invocationLabels("success"))

	expected := `
# HELP calltracer_invocations_total calltracer invocation counter
# TYPE calltracer_invocations_total counter
calltracer_invocations_total{function="addToCart",status="success",tag="test_function"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "calltracer_invocations_total"))
}

func Test_MetricsCollector_ConcurrentUse(t *testing.T) {
	collector, registry := givenCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("calltracer_invocations_total", invocationLabels("success"))
			collector.RecordDuration("calltracer_invocation_duration_seconds", time.Second, invocationLabels("success"))
		}()
	}
	wg.Wait()

	expected := `
# HELP calltracer_invocations_total calltracer invocation counter
# TYPE calltracer_invocations_total counter
calltracer_invocations_total{function="addToCart",status="success",tag="test_function"} 20
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "calltracer_invocations_total"))
}

func Test_MetricsCollector_WiredIntoTracer(t *testing.T) {
	// arrange
	collector, registry := givenCollector()
	tracer, err := calltracer.NewTracer(calltracer.WithMetrics(collector))
	require.NoError(t, err)

	addToCart, err := calltracer.Wrap(tracer, func(sku string, qty int) int { return qty }, calltracer.WithFunctionName("addToCart"))
	require.NoError(t, err)

	// act
	addToCart("A-1", 2)

	// assert
	expected := `
# HELP calltracer_invocations_total calltracer invocation counter
# TYPE calltracer_invocations_total counter
calltracer_invocations_total{function="addToCart",status="success",tag="test_function"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "calltracer_invocations_total"))

	count, err := testutil.GatherAndCount(registry, "calltracer_invocation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
