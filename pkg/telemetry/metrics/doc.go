// Package metrics exposes dmkit's Prometheus metrics.
//
// A Collector owns its own registry and is handed to each component as
// that component's observer:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng.SetObserver(collector)
//	mgr.SetObserver(collector)
//	registry.SetObserver(collector)
//	services.SetObserver(collector)
//	http.Handle("/metrics", collector.Handler())
//
// # Metrics
//
//   - dmkit_resolve_total{product,domain,outcome}
//   - dmkit_resolve_duration_seconds{outcome}
//   - dmkit_ruleset_reloads_total{outcome}, dmkit_ruleset_reload_duration_seconds
//   - dmkit_ruleset_info{version}, dmkit_ruleset_domains{product}, dmkit_ruleset_policies{product}
//   - dmkit_ruleset_last_success_timestamp_seconds
//   - dmkit_function_calls_total{function,outcome}, dmkit_function_call_duration_seconds{function}
//   - dmkit_remote_calls_total{service,outcome}, dmkit_remote_call_duration_seconds{service}
//   - dmkit_evidence_records_total{outcome}, dmkit_evidence_pruned_records_total,
//     dmkit_evidence_prune_runs_total{outcome}
//
// Product and domain labels come from request input and are capped by a
// CardinalityLimiter; overflow is reported under "other".
package metrics
