// Package tracerenv loads calltracer configuration from the environment.
//
//	CALLTRACER_DESC          description copied into every record
//	CALLTRACER_DUMP_ARGS     never | on_failure | always (default on_failure)
//	CALLTRACER_CALL_STACK    render the caller stack on each line (default false)
//	CALLTRACER_SOURCE_ROOT   installation root stripped from source locations
//
// An invalid CALLTRACER_DUMP_ARGS fails Load, not the first traced call.
package tracerenv

import (
	"context"
	"errors"

	"github.com/sethvargo/go-envconfig"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

var ErrLoadingConfigFailed = errors.New("loading calltracer config from environment failed")

// Config mirrors the CALLTRACER_* environment variables.
type Config struct {
	Description string `env:"CALLTRACER_DESC"`
	DumpArgs    string `env:"CALLTRACER_DUMP_ARGS,default=on_failure"`
	CallStack   bool   `env:"CALLTRACER_CALL_STACK,default=false"`
	SourceRoot  string `env:"CALLTRACER_SOURCE_ROOT"`
}

// Load reads the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration through lookuper, e.g. envconfig.MapLookuper in tests.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, errors.Join(ErrLoadingConfigFailed, err)
	}

	if _, err := calltracer.ParseArgumentCapturePolicy(cfg.DumpArgs); err != nil {
		return Config{}, errors.Join(ErrLoadingConfigFailed, err)
	}

	return cfg, nil
}

// TraceOptions converts the per-function settings into options for calltracer.Wrap.
func (c Config) TraceOptions() []calltracer.TraceOption {
	return []calltracer.TraceOption{
		calltracer.WithDescription(c.Description),
		calltracer.WithArgumentCapturePolicyName(c.DumpArgs),
		calltracer.WithCallStack(c.CallStack),
	}
}

// TracerOptions converts the tracer-wide settings into options for calltracer.NewTracer.
func (c Config) TracerOptions() []calltracer.Option {
	if c.SourceRoot == "" {
		return nil
	}

	return []calltracer.Option{calltracer.WithSourceRoot(c.SourceRoot)}
}
