package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dmkit-hq/dmkit/pkg/config"
)

// CallMetrics tracks user function and remote service calls.
type CallMetrics struct {
	functionsTotal   *prometheus.CounterVec
	functionDuration *prometheus.HistogramVec
	remoteTotal      *prometheus.CounterVec
	remoteDuration   *prometheus.HistogramVec
}

// NewCallMetrics creates and registers call metrics.
func NewCallMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CallMetrics {
	m := &CallMetrics{
		functionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "function_calls_total",
				Help:      "Total number of user function calls",
			},
			[]string{"function", "outcome"},
		),
		functionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "function_call_duration_seconds",
				Help:      "Duration of user function calls in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"function"},
		),
		remoteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of remote service calls",
			},
			[]string{"service", "outcome"},
		),
		remoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Duration of remote service calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
	}
	registry.MustRegister(m.functionsTotal, m.functionDuration, m.remoteTotal, m.remoteDuration)
	return m
}

func (m *CallMetrics) recordFunction(name string, err error, duration time.Duration) {
	m.functionsTotal.WithLabelValues(name, outcomeOf(err)).Inc()
	m.functionDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func (m *CallMetrics) recordRemote(service string, err error, duration time.Duration) {
	m.remoteTotal.WithLabelValues(service, outcomeOf(err)).Inc()
	m.remoteDuration.WithLabelValues(service).Observe(duration.Seconds())
}
