package calltracer

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/google/uuid"
)

const goexitMessage = "runtime.Goexit"

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// skipReporter is implemented by *testing.T and *testing.B.
type skipReporter interface {
	Skipped() bool
}

// Wrap returns a function of exactly the type of fn that traces every call of fn.
//
// A call is a failure when fn returns a non-nil error as its last result, panics, or leaves
// through runtime.Goexit (t.FailNow). It is skipped when that error or panic value is a
// skip signal (see Skip), or when it leaves through runtime.Goexit with a skipped testing.TB argument.
// Results, errors, panic values, and Goexit all reach the caller unchanged.
//
// Invalid options fail here, before any call happens.
func Wrap[F any](tracer *Tracer, fn F, options ...TraceOption) (F, error) {
	var zero F

	if tracer == nil {
		return zero, ErrNilTracer
	}

	fnValue := reflect.ValueOf(fn)
	if !fnValue.IsValid() {
		return zero, ErrNilFunction
	}

	if fnValue.Kind() != reflect.Func {
		return zero, fmt.Errorf("%w: %T", ErrNotAFunction, fn)
	}

	if fnValue.IsNil() {
		return zero, ErrNilFunction
	}

	cfg, err := NewTraceConfig(options...)
	if err != nil {
		return zero, err
	}

	wrapped, ok := tracer.wrapValue(fnValue, cfg).Interface().(F)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrNotAFunction, fn)
	}

	return wrapped, nil
}

// MustWrap is like Wrap but panics on configuration failure. Meant for package-level declarations.
func MustWrap[F any](tracer *Tracer, fn F, options ...TraceOption) F {
	wrapped, err := Wrap(tracer, fn, options...)
	if err != nil {
		panic(err)
	}

	return wrapped
}

// wrapValue builds the replacement function. fn must not be addressable storage that gets
// overwritten with the result.
func (t *Tracer) wrapValue(fn reflect.Value, cfg TraceConfig) reflect.Value {
	if cfg.FunctionName == "" {
		cfg.FunctionName = functionNameOf(fn)
	}

	return reflect.MakeFunc(fn.Type(), func(args []reflect.Value) []reflect.Value {
		return t.invoke(fn, cfg, args)
	})
}

func functionNameOf(fn reflect.Value) string {
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		return shortFunctionName(f.Name())
	}

	return ""
}

type exitKind int

const (
	exitReturned exitKind = iota
	exitPanicked
	exitGoexit
)

// invocation is the state of one traced call. It is owned by that call alone.
type invocation struct {
	cfg        TraceConfig
	id         string
	start      time.Time
	pcs        []uintptr
	args       []reflect.Value
	exit       exitKind
	results    []reflect.Value
	panicValue any
	record     InvocationRecord
	startErr   error
}

func (t *Tracer) invoke(fn reflect.Value, cfg TraceConfig, args []reflect.Value) (results []reflect.Value) {
	inv := t.begin(cfg, args)

	returned := false
	defer func() {
		if returned {
			t.finish(inv)
			return
		}

		recovered := recover()
		if recovered == nil {
			inv.exit = exitGoexit
			t.finish(inv)
			return
		}

		inv.exit = exitPanicked
		inv.panicValue = recovered
		t.finish(inv)
		panic(recovered)
	}()

	if fn.Type().IsVariadic() {
		results = fn.CallSlice(args)
	} else {
		results = fn.Call(args)
	}

	inv.exit = exitReturned
	inv.results = results
	returned = true

	return results
}

// begin is the starting phase of every traced call. Nothing raised in here reaches the caller.
func (t *Tracer) begin(cfg TraceConfig, args []reflect.Value) (inv *invocation) {
	inv = &invocation{
		cfg:  cfg,
		pcs:  callerPCs(),
		args: args,
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			inv.startErr = fmt.Errorf("%v", recovered)
		}
	}()

	inv.id = newInvocationID()
	inv.start = t.clock()

	return inv
}

func newInvocationID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return ""
	}

	return id.String()
}

// recordOutcome fills the outcome part of the record from how the traced call exited.
func (inv *invocation) recordOutcome() {
	inv.record = InvocationRecord{
		FunctionName:    inv.cfg.FunctionName,
		StartTimestamp:  inv.start.Unix(),
		SourceClassName: inv.cfg.SourceClassName,
		Description:     inv.cfg.Description,
	}

	switch inv.exit {
	case exitReturned:
		if len(inv.results) > 0 {
			if err := errorResult(inv.results[len(inv.results)-1]); err != nil {
				inv.recordError(err)
			}
		}
	case exitPanicked:
		inv.recordPanic(inv.panicValue)
	case exitGoexit:
		inv.recordGoexit()
	}
}

func errorResult(v reflect.Value) error {
	if !v.Type().Implements(errorType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	default:
	}

	err, _ := v.Interface().(error)

	return err
}

func (inv *invocation) recordError(err error) {
	if IsSkip(err) {
		inv.record.WasSkipped = true
	} else {
		inv.record.HadTraceback = true
	}

	inv.record.Message = err.Error()
}

func (inv *invocation) recordPanic(value any) {
	if err, ok := value.(error); ok {
		inv.recordError(err)
		return
	}

	inv.record.HadTraceback = true
	inv.record.Message = fmt.Sprint(value)
}

// recordGoexit handles t.Skip and t.FailNow, which leave the traced function through runtime.Goexit.
func (inv *invocation) recordGoexit() {
	for _, arg := range inv.args {
		if !arg.IsValid() || !arg.CanInterface() {
			continue
		}

		if arg.Kind() == reflect.Pointer && arg.IsNil() {
			continue
		}

		if reporter, ok := arg.Interface().(skipReporter); ok && reporter.Skipped() {
			inv.record.WasSkipped = true
			inv.record.Message = goexitMessage

			return
		}
	}

	inv.record.HadTraceback = true
	inv.record.Message = goexitMessage
}

// context returns the first non-nil context.Context argument, or context.Background.
func (inv *invocation) context() context.Context {
	for _, arg := range inv.args {
		if !arg.IsValid() || !arg.Type().Implements(contextType) || !arg.CanInterface() {
			continue
		}

		if ctx, ok := arg.Interface().(context.Context); ok && ctx != nil {
			return ctx
		}
	}

	return context.Background()
}

func (inv *invocation) argumentValues() []any {
	values := make([]any, 0, len(inv.args))
	for _, arg := range inv.args {
		if !arg.IsValid() || !arg.CanInterface() {
			values = append(values, nil)
			continue
		}

		values = append(values, arg.Interface())
	}

	return values
}

// finish is the finishing phase of every traced call. Nothing raised in here reaches the caller.
func (t *Tracer) finish(inv *invocation) {
	defer func() {
		if recovered := recover(); recovered != nil {
			t.logInstrumentationFailure(inv, fmt.Errorf("%v", recovered))
		}
	}()

	if inv.startErr != nil {
		t.logInstrumentationFailure(inv, inv.startErr)
		return
	}

	if err := t.emit(inv); err != nil {
		t.logInstrumentationFailure(inv, err)
	}
}

func (t *Tracer) emit(inv *invocation) error {
	elapsed := t.clock().Sub(inv.start)
	ctx := inv.context()

	inv.recordOutcome()
	record := inv.record
	record.DurationSeconds = floorSeconds(elapsed)

	frames := resolveFrames(inv.pcs)
	classification := t.classifier.Classify(frames, record.FunctionName, record.WasSkipped)
	record.Tag = classification.Tag
	record.CalledBy = classification.CalledBy
	record.TestName = classification.TestName
	record.SourceLocation = classification.SourceLocation

	if record.WasSkipped {
		t.logSkipped(ctx, inv, record)
	}

	var stack []string
	if inv.cfg.CaptureCallStack {
		stack = RenderStack(frames, classification.WalkDepth)
	}

	var args []any
	if inv.cfg.capturesArguments(record.Tag, record.HadTraceback, record.WasSkipped) {
		args = inv.argumentValues()
	}

	line, err := renderLine(record, stack, args)
	if err != nil {
		return err
	}

	t.logTraceLine(ctx, inv, record, line)
	t.recordInvocationMetrics(ctx, record, elapsed)

	return nil
}

// floorSeconds truncates to whole seconds; sub-second calls report 0.
func floorSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}

	return int64(d / time.Second)
}
