// Package health serves liveness, readiness and version endpoints.
//
// Readiness aggregates named checks. dmkit registers RuleSetCheck, which
// passes once the policy manager has published a generation, and, when the
// evidence journal uses SQLite, a PingCheck on the store.
//
//	checker := health.New(2 * time.Second)
//	checker.Register("ruleset", health.RuleSetCheck(mgr))
//	health.Register(mux, checker, health.VersionInfo{Version: version})
package health
