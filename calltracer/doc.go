// Package calltracer traces calls of functions used by test code.
//
// Every call of a wrapped function emits one log line that describes its timing, its outcome,
// and the test context it was called from:
//
//	TRACER <test_function>{"function_name":"addToCart",...}</test_function> stack=[...] args=(...)
//
// The context is found by walking the caller stack outward until a test function, the go test
// cleanup runner, or TestMain shows up. Tags:
//   - test: the traced function is itself named like a test
//   - skipped_test: the call returned or panicked with a skip signal (see Skip)
//   - test_function / test_subfunction: called directly / indirectly by a test
//   - cleanup_function / cleanup_subfunction: run directly / indirectly by t.Cleanup
//   - setup_function / setup_subfunction: called directly / indirectly by TestMain
//   - other_function: none of the above
//
// Tracing is strictly observational. Results, errors, panic values, and runtime.Goexit
// (t.Skip, t.FailNow) reach the caller exactly as the wrapped function produced them,
// and failures of the tracing itself are logged at warn level and swallowed.
//
// Common usage pattern:
//
//	tracer, err := calltracer.NewTracer(calltracer.WithLogger(slog.Default()))
//	if err != nil {
//		// handle error
//	}
//
//	addToCart, err := calltracer.Wrap(tracer, addToCart,
//		calltracer.WithDescription("cart steps"),
//		calltracer.WithArgumentCapture(calltracer.CaptureAlways),
//		calltracer.WithCallStack(true))
//	if err != nil {
//		// handle error
//	}
//
// Struct types that group test steps as func fields can be traced as a whole with ApplyToType,
// or at construction time with an AutoTrace hook.
//
// A call that never returns is never logged.
package calltracer
