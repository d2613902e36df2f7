package calltracer

import (
	"fmt"
)

// ArgumentCapturePolicy controls when the arguments of a traced call are written to its trace line.
type ArgumentCapturePolicy string

const (
	// CaptureNever omits arguments, except for calls tagged TagTest.
	CaptureNever ArgumentCapturePolicy = "never"

	// CaptureAlways includes arguments on every trace line.
	CaptureAlways ArgumentCapturePolicy = "always"

	// CaptureOnFailure includes arguments when the traced call failed without being skipped.
	CaptureOnFailure ArgumentCapturePolicy = "on_failure"
)

// ArgumentCapturePolicies lists the valid policies in the order they are documented.
var ArgumentCapturePolicies = []ArgumentCapturePolicy{CaptureNever, CaptureOnFailure, CaptureAlways}

// Validate returns ErrInvalidArgumentCapturePolicy for anything but the three known policies.
func (p ArgumentCapturePolicy) Validate() error {
	switch p {
	case CaptureNever, CaptureAlways, CaptureOnFailure:
		return nil
	default:
		return fmt.Errorf("%w: %q - must be one of: %v", ErrInvalidArgumentCapturePolicy, string(p), ArgumentCapturePolicies)
	}
}

// ParseArgumentCapturePolicy converts a configuration string into a validated ArgumentCapturePolicy.
func ParseArgumentCapturePolicy(s string) (ArgumentCapturePolicy, error) {
	p := ArgumentCapturePolicy(s)
	if err := p.Validate(); err != nil {
		return "", err
	}

	return p, nil
}

// TraceConfig is the per-function configuration bound at wrap time.
//
// It is never mutated after Wrap returns, so one wrapped function can be called concurrently
// without coordination.
type TraceConfig struct {
	Description           string
	SourceClassName       string
	ArgumentCapturePolicy ArgumentCapturePolicy
	CaptureCallStack      bool

	// FunctionName overrides the name resolved from the runtime symbol of the wrapped function.
	FunctionName string
}

// TraceOption defines a functional option for configuring a TraceConfig.
type TraceOption func(*TraceConfig) error

// NewTraceConfig builds a TraceConfig from the defaults and the given options.
// Invalid options fail here, before any traced call happens.
func NewTraceConfig(options ...TraceOption) (TraceConfig, error) {
	cfg := TraceConfig{
		ArgumentCapturePolicy: CaptureOnFailure,
	}

	for _, option := range options {
		if err := option(&cfg); err != nil {
			return TraceConfig{}, err
		}
	}

	return cfg, nil
}

// WithDescription sets a free-text label that is copied into every trace record.
func WithDescription(description string) TraceOption {
	return func(cfg *TraceConfig) error {
		cfg.Description = description
		return nil
	}
}

// WithSourceClassName sets the name of the type that owns the traced function.
func WithSourceClassName(name string) TraceOption {
	return func(cfg *TraceConfig) error {
		cfg.SourceClassName = name
		return nil
	}
}

// WithArgumentCapture sets the argument capture policy.
func WithArgumentCapture(policy ArgumentCapturePolicy) TraceOption {
	return func(cfg *TraceConfig) error {
		if err := policy.Validate(); err != nil {
			return err
		}

		cfg.ArgumentCapturePolicy = policy

		return nil
	}
}

// WithArgumentCapturePolicyName sets the argument capture policy from its configuration string.
func WithArgumentCapturePolicyName(name string) TraceOption {
	return func(cfg *TraceConfig) error {
		policy, err := ParseArgumentCapturePolicy(name)
		if err != nil {
			return err
		}

		cfg.ArgumentCapturePolicy = policy

		return nil
	}
}

// WithCallStack enables or disables rendering of the caller stack on each trace line.
func WithCallStack(enabled bool) TraceOption {
	return func(cfg *TraceConfig) error {
		cfg.CaptureCallStack = enabled
		return nil
	}
}

// WithFunctionName sets the name under which the traced function is reported and classified.
func WithFunctionName(name string) TraceOption {
	return func(cfg *TraceConfig) error {
		cfg.FunctionName = name
		return nil
	}
}

// capturesArguments decides whether arguments go into the trace line.
// It depends on nothing but the policy, the tag and the two outcome flags.
func (cfg TraceConfig) capturesArguments(tag Tag, hadTraceback, wasSkipped bool) bool {
	return cfg.ArgumentCapturePolicy == CaptureAlways ||
		tag == TagTest ||
		(cfg.ArgumentCapturePolicy == CaptureOnFailure && hadTraceback && !wasSkipped)
}
