package ratelimit

import (
	"sync"
	"time"

	"dmkit-hq/dmkit/pkg/config"
)

// Rejection reasons.
const (
	ReasonRate        = "rate"
	ReasonConcurrency = "concurrency"
)

// Config contains admission limits for resolve requests. Zero values
// disable the corresponding limit.
type Config struct {
	// RequestsPerSecond is the sustained per-product request rate.
	RequestsPerSecond float64

	// Burst is the per-product bucket capacity (default: 2x the rate, at least 1)
	Burst int

	// MaxConcurrent caps in-flight resolves across all products.
	MaxConcurrent int
}

// FromConfig builds a limiter configuration from the server section.
func FromConfig(cfg config.RateLimitConfig) *Config {
	return &Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxConcurrent:     cfg.MaxConcurrent,
	}
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool

	// Reason is ReasonRate or ReasonConcurrency when not allowed.
	Reason string

	// RetryAfter is set for rate rejections.
	RetryAfter time.Duration
}

// Limiter admits resolve requests per product. Each product gets its own
// token bucket on first use; the concurrency cap is shared.
type Limiter struct {
	config     Config
	now        func() time.Time
	concurrent *ConcurrentLimiter

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// New creates a limiter.
func New(cfg *Config) *Limiter {
	l := &Limiter{
		config:  *cfg,
		now:     time.Now,
		buckets: make(map[string]*TokenBucket),
	}
	if l.config.RequestsPerSecond > 0 && l.config.Burst <= 0 {
		l.config.Burst = max(1, int(2*l.config.RequestsPerSecond))
	}
	if cfg.MaxConcurrent > 0 {
		l.concurrent = NewConcurrentLimiter(cfg.MaxConcurrent)
	}
	return l
}

// Admit checks both limits for product. When the decision is allowed the
// returned release func must be called once the request finishes.
func (l *Limiter) Admit(product string) (Decision, func()) {
	if l.config.RequestsPerSecond > 0 {
		if ok, wait := l.bucket(product).Take(); !ok {
			return Decision{Reason: ReasonRate, RetryAfter: wait}, nil
		}
	}
	if l.concurrent == nil {
		return Decision{Allowed: true}, func() {}
	}
	if !l.concurrent.Acquire() {
		return Decision{Reason: ReasonConcurrency}, nil
	}
	var once sync.Once
	return Decision{Allowed: true}, func() { once.Do(l.concurrent.Release) }
}

func (l *Limiter) bucket(product string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[product]
	if !ok {
		b = newTokenBucket(l.config.Burst, l.config.RequestsPerSecond, l.now)
		l.buckets[product] = b
	}
	return b
}

// InFlight returns the number of admitted requests not yet released.
func (l *Limiter) InFlight() int64 {
	if l.concurrent == nil {
		return 0
	}
	return l.concurrent.Current()
}
