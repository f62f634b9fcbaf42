package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/policy/model"
)

// otherLabel replaces label values once the cardinality limit is reached.
const otherLabel = "other"

// Collector owns the dmkit Prometheus metrics. It implements the observer
// interfaces of the engine, the policy manager, the function registry, the
// remote service manager and the evidence recorder.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	resolve  *ResolveMetrics
	rules    *RuleSetMetrics
	calls    *CallMetrics
	evidence *EvidenceMetrics

	limiter *CardinalityLimiter
}

// NewCollector creates a collector and registers every metric with registry.
// A nil registry gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = config.DefaultDurationBuckets
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		resolve:  NewResolveMetrics(cfg, registry),
		rules:    NewRuleSetMetrics(cfg, registry),
		calls:    NewCallMetrics(cfg, registry),
		evidence: NewEvidenceMetrics(cfg, registry),
		limiter:  NewCardinalityLimiter(1000),
	}
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveResolve records one Resolve call. Products and domains come from
// callers, so unseen label pairs beyond the cardinality limit are folded
// into "other".
func (c *Collector) ObserveResolve(product, domain, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	if !c.limiter.Allow(fmt.Sprintf("%s/%s", product, domain)) {
		product, domain = otherLabel, otherLabel
	}
	c.resolve.record(product, domain, outcome, duration)
}

// ObserveReject records a resolve request refused before resolution.
func (c *Collector) ObserveReject(reason string) {
	if !c.config.Enabled {
		return
	}
	c.resolve.rejected.WithLabelValues(reason).Inc()
}

// ObserveReload records one rule set load attempt. rs is the installed
// generation on success and nil otherwise.
func (c *Collector) ObserveReload(outcome string, duration time.Duration, rs *model.RuleSet) {
	if !c.config.Enabled {
		return
	}
	c.rules.record(outcome, duration, rs)
}

// ObserveFunctionCall records one user function call.
func (c *Collector) ObserveFunctionCall(name string, err error, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.calls.recordFunction(name, err, duration)
}

// ObserveRemoteCall records one remote service call.
func (c *Collector) ObserveRemoteCall(service string, err error, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.calls.recordRemote(service, err, duration)
}

// ObserveRecord records the fate of one evidence record.
func (c *Collector) ObserveRecord(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.evidence.recordsTotal.WithLabelValues(outcome).Inc()
}

// ObservePrune records one retention run.
func (c *Collector) ObservePrune(deleted int64, err error) {
	if !c.config.Enabled {
		return
	}
	c.evidence.prunedTotal.Add(float64(deleted))
	c.evidence.pruneRuns.WithLabelValues(outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// CardinalityLimiter caps the number of distinct label sets a metric may
// create.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits under the
// limit, remembering it in the latter case.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the number of label sets seen.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
