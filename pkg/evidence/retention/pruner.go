package retention

import (
	"context"
	"log/slog"
	"time"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is how long records are kept. 0 keeps them forever.
	RetentionDays int

	// MaxRecords caps the journal size. 0 means unlimited.
	MaxRecords int64

	// PruneSchedule is a standard cron expression, e.g. "0 3 * * *".
	// Empty disables scheduled pruning.
	PruneSchedule string
}

// FromConfig builds a pruner configuration from the retention section.
func FromConfig(cfg config.RetentionConfig) *Config {
	return &Config{
		RetentionDays: cfg.Days,
		MaxRecords:    cfg.MaxRecords,
		PruneSchedule: cfg.PruneSchedule,
	}
}

// Observer receives the result of every pruning run.
type Observer interface {
	ObservePrune(deleted int64, err error)
}

// Pruner enforces the retention limits on a journal.
type Pruner struct {
	storage   evidence.Storage
	config    *Config
	logger    *slog.Logger
	observer  Observer
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a pruner and its scheduler.
func NewPruner(storage evidence.Storage, cfg *Config, logger *slog.Logger) *Pruner {
	if cfg == nil {
		cfg = FromConfig(config.Default().Evidence.Retention)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  logger.With("component", "evidence.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p, logger)
	return p
}

// SetObserver installs an observer. It must be called before Start.
func (p *Pruner) SetObserver(o Observer) {
	p.observer = o
}

// Prune deletes records older than the retention period, then the oldest
// records beyond MaxRecords. It returns the total deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	deleted, err := p.prune(ctx)
	if p.observer != nil {
		p.observer.ObservePrune(deleted, err)
	}
	if err != nil {
		p.logger.Error("Evidence pruning failed", "deleted", deleted, "error", err)
		return deleted, err
	}
	if deleted > 0 {
		p.logger.Info("Evidence pruning completed",
			"deleted", deleted,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}
	return deleted, nil
}

func (p *Pruner) prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		n, err := p.storage.Delete(ctx, &evidence.Query{EndTime: &cutoff})
		if err != nil {
			return total, &evidence.RetentionError{Phase: "age", Cause: err}
		}
		total += n
	}

	if p.config.MaxRecords > 0 {
		count, err := p.storage.Count(ctx, &evidence.Query{})
		if err != nil {
			return total, &evidence.RetentionError{Phase: "count", Cause: err}
		}
		if excess := count - p.config.MaxRecords; excess > 0 {
			n, err := p.storage.DeleteOldest(ctx, excess)
			if err != nil {
				return total, &evidence.RetentionError{Phase: "count", Cause: err}
			}
			total += n
		}
	}

	return total, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	if err := p.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.scheduler.Stop()
	return nil
}

// Start starts the scheduler. ctx is passed to each scheduled prune.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the scheduler and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
