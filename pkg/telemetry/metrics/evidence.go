package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dmkit-hq/dmkit/pkg/config"
)

// EvidenceMetrics tracks the turn journal.
type EvidenceMetrics struct {
	recordsTotal *prometheus.CounterVec
	prunedTotal  prometheus.Counter
	pruneRuns    *prometheus.CounterVec
}

// NewEvidenceMetrics creates and registers evidence metrics.
func NewEvidenceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvidenceMetrics {
	m := &EvidenceMetrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "evidence",
				Name:      "records_total",
				Help:      "Turn records by outcome (stored, dropped, failed)",
			},
			[]string{"outcome"},
		),
		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "evidence",
				Name:      "pruned_records_total",
				Help:      "Turn records deleted by retention",
			},
		),
		pruneRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "evidence",
				Name:      "prune_runs_total",
				Help:      "Retention runs by outcome",
			},
			[]string{"outcome"},
		),
	}
	registry.MustRegister(m.recordsTotal, m.prunedTotal, m.pruneRuns)
	return m
}
