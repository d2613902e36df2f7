package calltracer

import (
	"reflect"
	"sync"
	"unsafe"
)

// AutoTrace is a construction hook: every struct built through it gets its own function
// members, and those of each embedded base, wrapped at construction time.
//
// The hook remembers every struct it processed through a pointer, the targets and their
// pointer bases, and never wraps them again: a base built with Construct and later
// embedded by a derived type keeps a single layer of tracing. A base embedded by value
// is part of the derived struct and is processed with it.
type AutoTrace struct {
	tracer  *Tracer
	options []TraceOption

	mu sync.Mutex
	// keys hold the processed structs, so their addresses are not reused while the hook lives
	processed map[unsafe.Pointer]struct{}
}

// NewAutoTrace creates the hook. The options are validated here, not when the first type is constructed.
func NewAutoTrace(tracer *Tracer, options ...TraceOption) (*AutoTrace, error) {
	if tracer == nil {
		return nil, ErrNilTracer
	}

	if _, err := NewTraceConfig(options...); err != nil {
		return nil, err
	}

	return &AutoTrace{
		tracer:    tracer,
		options:   append([]TraceOption(nil), options...),
		processed: make(map[unsafe.Pointer]struct{}),
	}, nil
}

// Apply wraps the function members of target and of every embedded base struct, each under
// its own type name, and returns how many it wrapped. Structs the hook processed before,
// target included, are skipped.
func (a *AutoTrace) Apply(target any) (int, error) {
	structValue, err := structElem(target)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.markProcessed(reflect.ValueOf(target)) {
		return 0, nil
	}

	return a.apply(structValue)
}

// markProcessed records ptr and reports whether it was new.
func (a *AutoTrace) markProcessed(ptr reflect.Value) bool {
	key := ptr.UnsafePointer()
	if _, seen := a.processed[key]; seen {
		return false
	}

	a.processed[key] = struct{}{}

	return true
}

func (a *AutoTrace) apply(structValue reflect.Value) (int, error) {
	wrapped, err := a.tracer.applyToStruct(structValue, a.options)
	if err != nil {
		return wrapped, err
	}

	structType := structValue.Type()
	for i := 0; i < structType.NumField(); i++ {
		if !structType.Field(i).Anonymous {
			continue
		}

		base := structValue.Field(i)
		if base.Kind() == reflect.Pointer {
			if base.IsNil() || !a.markProcessed(base) {
				continue
			}

			base = base.Elem()
		}

		if base.Kind() != reflect.Struct {
			continue
		}

		n, baseErr := a.apply(base)
		wrapped += n

		if baseErr != nil {
			return wrapped, baseErr
		}
	}

	return wrapped, nil
}

// Construct runs v through the hook and returns it, for use in constructors:
//
//	func NewCheckoutSteps() (*CheckoutSteps, error) {
//		return calltracer.Construct(hook, &CheckoutSteps{...})
//	}
func Construct[T any](hook *AutoTrace, v *T) (*T, error) {
	if _, err := hook.Apply(v); err != nil {
		return nil, err
	}

	return v, nil
}
