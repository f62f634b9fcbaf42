// Package telemetry holds the observability packages of the dmkit server.
//
// # Components
//
//   - logging: slog setup with log_id and product attributes, optional PII
//     redaction
//   - metrics: Prometheus collectors for resolves, reloads, user function
//     and remote calls, and the turn journal
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	eng.SetObserver(collector)
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(ctx)
//
// Components take observer interfaces rather than a Collector, so tests and
// the offline CLI commands run without metrics.
package telemetry
