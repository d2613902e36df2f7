// Package testdoubles provides test doubles (spies) for the calltracer observability interfaces.
//
//   - LogHandlerSpy: a slog.Handler capturing records, for tracers configured WithLogger(slog.New(spy))
//   - ContextualLoggerSpy: captures contextual logging calls together with their context
//   - MetricsCollectorSpy: captures metrics recording calls for verification
//
// LogHandlerSpy.GetTraceLines returns the captured trace lines, ready for tracelog.Parse.
package testdoubles
