// Package ratelimit provides admission control for resolve requests: a
// token bucket per product and a shared cap on in-flight resolves.
//
//	limiter := ratelimit.New(&ratelimit.Config{RequestsPerSecond: 50, MaxConcurrent: 256})
//	decision, release := limiter.Admit(product)
//	if !decision.Allowed {
//	    // reply 429, Retry-After: decision.RetryAfter
//	}
//	defer release()
package ratelimit
