package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/policy/model"
)

// RuleSetMetrics tracks rule set loading and the live generation.
//
// Metrics:
//   - dmkit_ruleset_reloads_total: load attempts by outcome
//   - dmkit_ruleset_reload_duration_seconds: load duration
//   - dmkit_ruleset_last_success_timestamp_seconds: when the live generation was built
//   - dmkit_ruleset_info: 1 for the live generation's version
//   - dmkit_ruleset_domains / dmkit_ruleset_policies: size of the live generation per product
type RuleSetMetrics struct {
	reloadsTotal   *prometheus.CounterVec
	reloadDuration prometheus.Histogram
	lastSuccess    prometheus.Gauge
	info           *prometheus.GaugeVec
	domains        *prometheus.GaugeVec
	policies       *prometheus.GaugeVec
}

// NewRuleSetMetrics creates and registers rule set metrics.
func NewRuleSetMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RuleSetMetrics {
	m := &RuleSetMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "ruleset",
				Name:      "reloads_total",
				Help:      "Total number of rule set load attempts",
			},
			[]string{"outcome"},
		),
		reloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "ruleset",
				Name:      "reload_duration_seconds",
				Help:      "Duration of rule set loads in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "ruleset",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time the live rule set generation was built",
			},
		),
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "ruleset",
				Name:      "info",
				Help:      "Version of the live rule set generation",
			},
			[]string{"version"},
		),
		domains: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "ruleset",
				Name:      "domains",
				Help:      "Number of domains per product in the live generation",
			},
			[]string{"product"},
		),
		policies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "ruleset",
				Name:      "policies",
				Help:      "Number of policies per product in the live generation",
			},
			[]string{"product"},
		),
	}
	registry.MustRegister(m.reloadsTotal, m.reloadDuration, m.lastSuccess, m.info, m.domains, m.policies)
	return m
}

func (m *RuleSetMetrics) record(outcome string, duration time.Duration, rs *model.RuleSet) {
	m.reloadsTotal.WithLabelValues(outcome).Inc()
	m.reloadDuration.Observe(duration.Seconds())
	if rs == nil {
		return
	}

	m.lastSuccess.Set(float64(rs.LoadedAt.Unix()))
	m.info.Reset()
	m.info.WithLabelValues(rs.Version).Set(1)

	m.domains.Reset()
	m.policies.Reset()
	for _, name := range rs.ProductNames() {
		product := rs.Product(name)
		count := 0
		for _, dp := range product {
			count += dp.PolicyCount()
		}
		m.domains.WithLabelValues(name).Set(float64(len(product)))
		m.policies.WithLabelValues(name).Set(float64(count))
	}
}
