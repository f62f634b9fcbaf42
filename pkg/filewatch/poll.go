package filewatch

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// PollWatcher detects changes by comparing modification times on a fixed
// interval. All callbacks run on the single polling goroutine.
type PollWatcher struct {
	interval time.Duration
	logger   *slog.Logger

	scanMu sync.Mutex

	mu      sync.Mutex
	regs    map[*pollRegistration]struct{}
	started bool
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type pollRegistration struct {
	w       *PollWatcher
	path    string
	fn      Callback
	level   bool
	modTime time.Time
}

// NewPollWatcher creates a polling watcher. The polling goroutine starts
// with the first registration.
func NewPollWatcher(cfg *Config, logger *slog.Logger) *PollWatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &PollWatcher{
		interval: interval,
		logger:   logger.With("component", "filewatch.poll"),
		regs:     make(map[*pollRegistration]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Watch registers fn for modification-time changes of path. The current
// modification time is the baseline, so an unchanged file never fires.
func (w *PollWatcher) Watch(path string, fn Callback, levelTriggered bool) (Handle, error) {
	reg := &pollRegistration{w: w, path: path, fn: fn, level: levelTriggered}
	if info, err := os.Stat(path); err == nil {
		reg.modTime = info.ModTime()
	} else {
		w.logger.Warn("Watched file not accessible", "path", path, "error", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	w.regs[reg] = struct{}{}
	if !w.started {
		w.started = true
		go w.loop()
	}

	w.logger.Debug("Watching file", "path", path, "level_triggered", levelTriggered)
	return reg, nil
}

// Close stops the polling goroutine.
func (w *PollWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)
	if started {
		<-w.doneCh
	}
	return nil
}

// Scan checks every registration once.
func (w *PollWatcher) Scan() {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	w.mu.Lock()
	regs := make([]*pollRegistration, 0, len(w.regs))
	for reg := range w.regs {
		regs = append(regs, reg)
	}
	w.mu.Unlock()

	for _, reg := range regs {
		w.check(reg)
	}
}

func (w *PollWatcher) loop() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

func (w *PollWatcher) check(reg *pollRegistration) {
	info, err := os.Stat(reg.path)
	if err != nil {
		w.logger.Debug("Cannot stat watched file", "path", reg.path, "error", err)
		return
	}

	modTime := info.ModTime()
	if modTime.Equal(reg.modTime) {
		return
	}

	if !w.active(reg) {
		return
	}

	w.logger.Info("File change detected", "path", reg.path, "mod_time", modTime)
	err = reg.fn()
	if err != nil {
		w.logger.Warn("File change callback failed", "path", reg.path, "error", err)
		if reg.level {
			return
		}
	}
	reg.modTime = modTime
}

func (w *PollWatcher) active(reg *pollRegistration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.regs[reg]
	return ok
}

// Close removes the registration.
func (r *pollRegistration) Close() error {
	r.w.mu.Lock()
	delete(r.w.regs, r)
	r.w.mu.Unlock()
	return nil
}
