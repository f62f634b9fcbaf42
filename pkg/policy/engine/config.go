package engine

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Clock returns the current time. Alternative selection uses it.
type Clock func() time.Time

// Config contains configuration for the resolution engine.
type Config struct {
	// NotInFailOpen makes a not_in assertion pass when its value list fails
	// to resolve. This is the legacy behavior.
	// Default: true.
	NotInFailOpen bool

	// Clock picks among result alternatives as Unix seconds mod count.
	// Default: time.Now.
	Clock Clock

	// Tracer opens a span per resolve and per domain attempt.
	// Default: noop tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		NotInFailOpen: true,
		Clock:         time.Now,
		Tracer:        noop.NewTracerProvider().Tracer("dmkit/engine"),
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Clock == nil {
		out.Clock = time.Now
	}
	if out.Tracer == nil {
		out.Tracer = noop.NewTracerProvider().Tracer("dmkit/engine")
	}
	return &out
}
