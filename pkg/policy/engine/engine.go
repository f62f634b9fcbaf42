package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dmkit-hq/dmkit/pkg/policy/manager"
	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/telemetry/tracing"
)

// SnapshotSource hands out pinned rule set generations.
type SnapshotSource interface {
	Acquire() (*manager.Snapshot, error)
	Release(snap *manager.Snapshot)
}

// Resolve outcomes reported to an Observer.
const (
	OutcomeResolved       = "resolved"
	OutcomeNoPolicy       = "no_policy"
	OutcomeUnknownProduct = "unknown_product"
	OutcomeNotLoaded      = "not_loaded"
)

// Observer receives the outcome of every Resolve call. domain is empty
// unless the outcome is OutcomeResolved.
type Observer interface {
	ObserveResolve(product, domain, outcome string, duration time.Duration)
}

// OutcomeOf classifies an error returned by Resolve.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeResolved
	case errors.Is(err, manager.ErrNotLoaded):
		return OutcomeNotLoaded
	case errors.Is(err, ErrUnknownProduct):
		return OutcomeUnknownProduct
	default:
		return OutcomeNoPolicy
	}
}

// Engine resolves a dialog turn against the live rule set.
type Engine struct {
	source    SnapshotSource
	functions FunctionCaller
	config    *Config
	logger    *slog.Logger
	observer  Observer
}

// New creates an engine. functions may be nil, in which case every
// func_val param is unresolved.
func New(source SnapshotSource, functions FunctionCaller, config *Config, logger *slog.Logger) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("snapshot source cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:    source,
		functions: functions,
		config:    config.withDefaults(),
		logger:    logger.With("component", "policy.engine"),
	}, nil
}

// SetObserver installs an observer. It must be called before the engine
// serves requests.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Resolve produces the output for one turn of product. The generation is
// pinned for the whole call. Every ordinary "no result" outcome returns an
// error wrapping ErrNoPolicy.
func (e *Engine) Resolve(ctx context.Context, product string, qus model.QUSet, session model.Session, rc *model.RequestContext) (*model.ResolvedOutput, error) {
	start := time.Now()
	if rc == nil {
		rc = &model.RequestContext{}
	}

	ctx, span := e.config.Tracer.Start(ctx, "dm.resolve", trace.WithAttributes(
		tracing.AttrProduct.String(product),
		tracing.AttrLogID.String(rc.LogID),
	))
	defer span.End()

	out, err := e.resolve(ctx, product, qus, session, rc)
	duration := time.Since(start)

	outcome := OutcomeOf(err)
	domain := ""
	if err == nil {
		domain = out.Domain
		span.SetAttributes(tracing.AttrDomain.String(domain), tracing.AttrIntent.String(out.Intent))
	} else {
		span.SetStatus(codes.Error, err.Error())
	}
	if e.observer != nil {
		e.observer.ObserveResolve(product, domain, outcome, duration)
	}

	e.logger.Debug("Turn resolved",
		"log_id", rc.LogID,
		"product", product,
		"domain", domain,
		"outcome", outcome,
		"duration_ms", duration.Milliseconds(),
	)
	return out, err
}

func (e *Engine) resolve(ctx context.Context, product string, qus model.QUSet, session model.Session, rc *model.RequestContext) (*model.ResolvedOutput, error) {
	snap, err := e.source.Acquire()
	if err != nil {
		return nil, err
	}
	defer e.source.Release(snap)

	domains := snap.Product(product)
	if domains == nil {
		e.logger.Warn("Unknown product", "log_id", rc.LogID, "product", product)
		return nil, fmt.Errorf("%w %q", ErrUnknownProduct, product)
	}

	ranked := e.rank(domains, qus, session, rc)
	for _, c := range ranked {
		out, err := e.attempt(ctx, c, qus, session, rc)
		if err != nil {
			e.logger.Debug("Domain produced no output",
				"log_id", rc.LogID,
				"domain", c.domain.Name,
				"error", err,
			)
			continue
		}
		out.Version = snap.Version
		trace.SpanFromContext(ctx).SetAttributes(tracing.AttrVersion.String(snap.Version))
		return out, nil
	}

	return nil, fmt.Errorf("%w for product %q (%d candidate domains)", ErrNoPolicy, product, len(ranked))
}

// rank finds each domain's best policy and orders the matches.
func (e *Engine) rank(domains model.Product, qus model.QUSet, session model.Session, rc *model.RequestContext) []candidate {
	only, _ := rc.Param("domain")

	var ranked []candidate
	for _, name := range domains.DomainNames() {
		if only != "" && name != only {
			continue
		}
		dp := domains[name]
		p := FindBestPolicy(dp, qus.For(name), session)
		if p == nil {
			continue
		}
		ranked = append(ranked, candidate{
			domain:   dp,
			policy:   p,
			affinity: hasAffinity(dp, p, session),
		})
	}
	rankCandidates(ranked)
	return ranked
}

func (e *Engine) attempt(ctx context.Context, c candidate, qus model.QUSet, session model.Session, rc *model.RequestContext) (*model.ResolvedOutput, error) {
	ctx, span := e.config.Tracer.Start(ctx, "dm.resolve_domain", trace.WithAttributes(
		tracing.AttrDomain.String(c.domain.Name),
		tracing.AttrIntent.String(c.policy.Trigger.Intent),
		tracing.AttrAffinity.Bool(c.affinity),
	))
	defer span.End()

	out, err := e.ResolveOutput(ctx, c.domain.Name, c.policy, qus.For(c.domain.Name), session, rc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}
