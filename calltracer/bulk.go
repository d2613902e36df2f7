package calltracer

import (
	"fmt"
	"reflect"
)

// ApplyToType wraps every function member declared directly on the struct target points to.
//
// A member is an exported, non-nil field of func kind. Embedded (inherited) fields, unexported
// fields, and nil funcs are left untouched. Each wrapper reports the struct's type name as its
// source class and the field name as its function name, on top of the given options.
//
// Applying twice wraps twice: every call then emits two trace lines.
func ApplyToType(tracer *Tracer, target any, options ...TraceOption) (int, error) {
	if tracer == nil {
		return 0, ErrNilTracer
	}

	structValue, err := structElem(target)
	if err != nil {
		return 0, err
	}

	if _, err := NewTraceConfig(options...); err != nil {
		return 0, err
	}

	return tracer.applyToStruct(structValue, options)
}

func structElem(target any) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: got %T", ErrNotAStructPointer, target)
	}

	return v.Elem(), nil
}

func (t *Tracer) applyToStruct(structValue reflect.Value, options []TraceOption) (int, error) {
	structType := structValue.Type()
	wrapped := 0

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.Anonymous || !field.IsExported() || field.Type.Kind() != reflect.Func {
			continue
		}

		fieldValue := structValue.Field(i)
		if fieldValue.IsNil() || !fieldValue.CanSet() {
			continue
		}

		memberOptions := make([]TraceOption, 0, len(options)+2)
		memberOptions = append(memberOptions, options...)
		memberOptions = append(memberOptions, WithSourceClassName(structType.Name()), WithFunctionName(field.Name))

		cfg, err := NewTraceConfig(memberOptions...)
		if err != nil {
			return wrapped, err
		}

		// copy, the field itself gets overwritten with the wrapper
		original := reflect.ValueOf(fieldValue.Interface())
		fieldValue.Set(t.wrapValue(original, cfg))
		wrapped++
	}

	t.recordWrappedMembers(structType.Name(), wrapped)

	return wrapped, nil
}
