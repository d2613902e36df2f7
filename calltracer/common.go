package calltracer

import (
	"errors"
)

var ErrNilTracer = errors.New("nil tracer supplied")
var ErrNilFunction = errors.New("nil function supplied")
var ErrNotAFunction = errors.New("value to trace is not a function")
var ErrNilClock = errors.New("nil clock supplied")

// ErrInvalidArgumentCapturePolicy is returned at configuration time for an unknown argument capture policy.
var ErrInvalidArgumentCapturePolicy = errors.New("argument capture policy is not valid")

// ErrNotAStructPointer is returned when bulk application is pointed at anything but a non-nil struct pointer.
var ErrNotAStructPointer = errors.New("target must be a non-nil pointer to a struct")

// ErrInvalidConventions is returned when runner conventions are missing a required hook name.
var ErrInvalidConventions = errors.New("runner conventions are not valid")
