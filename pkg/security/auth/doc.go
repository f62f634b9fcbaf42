// Package auth authenticates resolve callers by API key.
//
// Keys come from the server.auth section of the configuration. A key may be
// limited to a set of products; the resolve handler enforces that limit
// once the request's product is known.
//
//	v := auth.FromConfig(cfg.Server.Auth)
//	handler = auth.Middleware(v, cfg.Server.Auth.Header, logger)(handler)
package auth
