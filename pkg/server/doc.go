// Package server exposes the resolver over HTTP.
//
// Routes:
//
//	POST /v1/dm/resolve   resolve one dialog turn
//	GET  /health          liveness
//	GET  /ready           readiness (a rule set generation is live)
//	GET  /version         build information
//	GET  /metrics         Prometheus metrics
//
// A resolve reply always has HTTP status 200 once the body decodes; the
// outcome is carried in error_code. A failed resolve answers
//
//	{"error_code": -1, "error_msg": "DM policy resolve failed", "log_id": "..."}
//
// and a successful one
//
//	{"error_code": 0, "log_id": "...", "result": {"meta": {...}, "result": [...], "session": {...}}}
//
// The original query is added to result.meta under "query" unless the
// policy already set it.
//
// With Options.Auth set, a request without a valid key gets 401 before the
// body is read. Once the product is known, a key outside its product scope
// gets 403, and with Options.Limiter set a rejected request gets 429 and a
// Retry-After header.
// Options.TLS switches Serve to HTTPS.
package server
