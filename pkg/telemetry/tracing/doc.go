// Package tracing sets up OpenTelemetry tracing for dmkit.
//
// New returns a Tracer backed by an OTLP gRPC exporter, or a noop tracer
// when tracing is disabled. The engine receives Tracer() through its config
// and opens a "dm.resolve" span per turn and a "dm.resolve_domain" span per
// domain attempt. Remote calls propagate the trace context with Inject.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	engineCfg := engine.DefaultConfig()
//	engineCfg.Tracer = tracer.Tracer()
package tracing
