package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dmkit-hq/dmkit/pkg/config"
)

// ResolveMetrics tracks dialog turn resolution.
//
// Metrics:
//   - dmkit_resolve_total: turns by product, domain and outcome
//   - dmkit_resolve_duration_seconds: resolve latency by outcome
//   - dmkit_resolve_rejected_total: requests refused before resolution, by reason
type ResolveMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

// NewResolveMetrics creates and registers resolve metrics.
func NewResolveMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ResolveMetrics {
	m := &ResolveMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "resolve_total",
				Help:      "Total number of resolved dialog turns",
			},
			[]string{"product", "domain", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Duration of dialog turn resolution in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "resolve_rejected_total",
				Help:      "Total number of resolve requests refused by admission control",
			},
			[]string{"reason"},
		),
	}
	registry.MustRegister(m.total, m.duration, m.rejected)
	return m
}

func (m *ResolveMetrics) record(product, domain, outcome string, duration time.Duration) {
	m.total.WithLabelValues(product, domain, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}
