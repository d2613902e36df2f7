package calltracer_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
	"github.com/AntonStoeckl/calltracer-go/calltracer/tracelog"
	"github.com/AntonStoeckl/calltracer-go/testutil/observability/testdoubles"
)

var (
	errOutOfStock   = errors.New("out of stock")
	errBadPassword  = errors.New("bad password")
	fixedStartTime  = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	fixedStartEpoch = fixedStartTime.Unix()
)

// givenTracer creates a Tracer that logs into a LogHandlerSpy, plus the given options.
func givenTracer(t *testing.T, options ...calltracer.Option) (*calltracer.Tracer, *testdoubles.LogHandlerSpy) {
	t.Helper()

	logSpy := testdoubles.NewLogHandlerSpy(false)
	allOptions := append([]calltracer.Option{calltracer.WithLogger(slog.New(logSpy))}, options...)

	tracer, err := calltracer.NewTracer(allOptions...)
	require.NoError(t, err)

	return tracer, logSpy
}

// givenSteppingClock returns a clock that starts at fixedStartTime and advances by step on every reading.
func givenSteppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := fixedStartTime.Add(-step)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		now = now.Add(step)

		return now
	}
}

// givenClockPanickingAfter returns a clock that works for n readings and panics afterwards.
func givenClockPanickingAfter(n int) func() time.Time {
	var mu sync.Mutex
	readings := 0

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		readings++
		if readings > n {
			panic("clock stopped")
		}

		return fixedStartTime
	}
}

// singleTraceLine asserts that exactly one trace line was logged and returns it parsed.
func singleTraceLine(t *testing.T, logSpy *testdoubles.LogHandlerSpy) tracelog.Line {
	t.Helper()

	lines := logSpy.GetTraceLines()
	require.Len(t, lines, 1)

	parsed, err := tracelog.Parse(lines[0])
	require.NoError(t, err, lines[0])

	return parsed
}

// traced functions used across tests

func addToCart(sku string, qty int) (int, error) {
	if qty <= 0 {
		return 0, errOutOfStock
	}

	return qty * 2, nil
}

func fetchCatalog(_ context.Context, region string) error {
	if region == "offline" {
		return calltracer.Skip("no network")
	}

	return nil
}

func login(user, password string) error {
	if password != "secret" {
		return errBadPassword
	}

	return nil
}

func sum(base int, values ...int) int {
	total := base
	for _, v := range values {
		total += v
	}

	return total
}

func explode(reason string) {
	panic(reason)
}
