package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
	"dmkit-hq/dmkit/pkg/policy/model"
)

// Record outcomes reported to an Observer.
const (
	OutcomeStored  = "stored"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

// ErrBufferFull is returned when the write channel has no room.
var ErrBufferFull = errors.New("evidence buffer full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("recorder closed")

// Config contains configuration for the recorder.
type Config struct {
	// AsyncBuffer is the size of the write channel.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxErrorLength truncates TurnRecord.Error.
	// Default: 500
	MaxErrorLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:    config.DefaultEvidenceAsyncBuffer,
		WriteTimeout:   config.DefaultEvidenceWriteTimeout,
		MaxErrorLength: 500,
	}
}

// FromConfig builds a recorder configuration from the evidence section.
func FromConfig(cfg config.EvidenceConfig) *Config {
	c := DefaultConfig()
	if cfg.AsyncBuffer > 0 {
		c.AsyncBuffer = cfg.AsyncBuffer
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	return c
}

// Observer receives the fate of every record handed to the recorder.
type Observer interface {
	ObserveRecord(outcome string)
}

// Recorder writes turn records to storage from a background goroutine.
type Recorder struct {
	storage  evidence.Storage
	config   *Config
	records  chan *evidence.TurnRecord
	logger   *slog.Logger
	observer Observer

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder and starts its writer.
func NewRecorder(storage evidence.Storage, cfg *Config, logger *slog.Logger) *Recorder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		records: make(chan *evidence.TurnRecord, cfg.AsyncBuffer),
		logger:  logger.With("component", "evidence.recorder"),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()

	r.logger.Info("Evidence recorder initialized",
		"async_buffer", cfg.AsyncBuffer,
		"write_timeout", cfg.WriteTimeout,
	)
	return r
}

// SetObserver installs an observer. It must be called before Record.
func (r *Recorder) SetObserver(o Observer) {
	r.observer = o
}

// Record enqueues rec without blocking. A full buffer drops the record.
func (r *Recorder) Record(rec *evidence.TurnRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.observe(OutcomeDropped)
		return evidence.NewRecorderError(rec.ID, ErrClosed)
	}
	select {
	case r.records <- rec:
		return nil
	default:
		r.observe(OutcomeDropped)
		r.logger.Warn("Evidence buffer full, dropping record",
			"record_id", rec.ID,
			"log_id", rec.LogID,
			"capacity", r.config.AsyncBuffer,
		)
		return evidence.NewRecorderError(rec.ID, ErrBufferFull)
	}
}

// Close stops accepting records, writes what is buffered and returns.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Evidence recorder shut down")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *evidence.TurnRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, rec); err != nil {
		r.observe(OutcomeFailed)
		r.logger.Error("Failed to store evidence record",
			"record_id", rec.ID,
			"log_id", rec.LogID,
			"error", err,
		)
		return
	}
	r.observe(OutcomeStored)

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("Slow evidence write",
			"record_id", rec.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}

func (r *Recorder) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRecord(outcome)
	}
}

// NewTurnRecord builds the journal entry for one resolve call. out is nil
// when resolveErr is set.
func (r *Recorder) NewTurnRecord(product, logID, outcome string, out *model.ResolvedOutput, resolveErr error, duration time.Duration) *evidence.TurnRecord {
	rec := &evidence.TurnRecord{
		ID:         uuid.New().String(),
		LogID:      logID,
		Product:    product,
		Outcome:    outcome,
		Duration:   duration,
		RecordedAt: time.Now(),
	}
	if resolveErr != nil {
		rec.Error = TruncateString(resolveErr.Error(), r.config.MaxErrorLength)
	}
	if out == nil {
		return rec
	}

	rec.Domain = out.Domain
	rec.Intent = out.Intent
	rec.State = out.State
	rec.Version = out.Version
	data, err := json.Marshal(out)
	if err != nil {
		r.logger.Warn("Failed to encode output for evidence", "log_id", logID, "error", err)
		return rec
	}
	rec.Output = string(data)
	rec.OutputHash = HashContent(data)
	return rec
}
