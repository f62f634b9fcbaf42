package filewatch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// NotifyWatcher delivers changes from filesystem events. The parent
// directory of each watched file is subscribed so that editors replacing
// the file through a rename are still observed.
type NotifyWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	retry    time.Duration

	mu       sync.Mutex
	regs     map[string]map[*notifyRegistration]struct{}
	dirs     map[string]int
	closed   bool
	inflight sync.WaitGroup

	stopCh chan struct{}
	doneCh chan struct{}
}

type notifyRegistration struct {
	w     *NotifyWatcher
	path  string
	dir   string
	fn    Callback
	level bool

	debouncer *Debouncer

	mu     sync.Mutex
	retry  *time.Timer
	closed bool
}

// NewNotifyWatcher creates an fsnotify-backed watcher and starts its event loop.
func NewNotifyWatcher(cfg *Config, logger *slog.Logger) (*NotifyWatcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = time.Second
	}

	w := &NotifyWatcher{
		watcher:  fsw,
		logger:   logger.With("component", "filewatch.notify"),
		debounce: cfg.Debounce,
		retry:    retry,
		regs:     make(map[string]map[*notifyRegistration]struct{}),
		dirs:     make(map[string]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers fn for changes to path.
func (w *NotifyWatcher) Watch(path string, fn Callback, levelTriggered bool) (Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
	}
	w.dirs[dir]++

	reg := &notifyRegistration{
		w:         w,
		path:      abs,
		dir:       dir,
		fn:        fn,
		level:     levelTriggered,
		debouncer: NewDebouncer(w.debounce),
	}
	if w.regs[abs] == nil {
		w.regs[abs] = make(map[*notifyRegistration]struct{})
	}
	w.regs[abs][reg] = struct{}{}

	w.logger.Debug("Watching file", "path", abs, "level_triggered", levelTriggered)
	return reg, nil
}

// Close stops the event loop, cancels pending callbacks and waits for
// running ones to return.
func (w *NotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	var regs []*notifyRegistration
	for _, set := range w.regs {
		for reg := range set {
			regs = append(regs, reg)
		}
	}
	w.mu.Unlock()

	for _, reg := range regs {
		reg.stop()
	}

	close(w.stopCh)
	<-w.doneCh
	w.inflight.Wait()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *NotifyWatcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.dispatch(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", "error", err)
		}
	}
}

func (w *NotifyWatcher) dispatch(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	var targets []*notifyRegistration
	for reg := range w.regs[name] {
		targets = append(targets, reg)
	}
	w.mu.Unlock()

	for _, reg := range targets {
		w.logger.Debug("File event detected", "path", name, "op", event.Op.String())
		reg.debouncer.Trigger(reg.fire)
	}
}

// begin marks a callback as running. It reports false once the watcher is
// closing.
func (w *NotifyWatcher) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.inflight.Add(1)
	return true
}

func (r *notifyRegistration) fire() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
	r.mu.Unlock()

	if !r.w.begin() {
		return
	}
	defer r.w.inflight.Done()

	r.w.logger.Info("File change detected", "path", r.path)
	err := r.fn()
	if err == nil {
		return
	}

	r.w.logger.Warn("File change callback failed", "path", r.path, "error", err)
	if !r.level {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.retry = time.AfterFunc(r.w.retry, r.fire)
	}
}

func (r *notifyRegistration) stop() {
	r.mu.Lock()
	r.closed = true
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
	r.mu.Unlock()
	r.debouncer.Stop()
}

// Close removes the registration and unsubscribes its directory when no
// other registration needs it.
func (r *notifyRegistration) Close() error {
	r.stop()

	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()

	set, ok := w.regs[r.path]
	if !ok {
		return nil
	}
	if _, ok := set[r]; !ok {
		return nil
	}
	delete(set, r)
	if len(set) == 0 {
		delete(w.regs, r.path)
	}

	w.dirs[r.dir]--
	if w.dirs[r.dir] <= 0 {
		delete(w.dirs, r.dir)
		if !w.closed {
			if err := w.watcher.Remove(r.dir); err != nil {
				return fmt.Errorf("failed to unwatch directory %q: %w", r.dir, err)
			}
		}
	}
	return nil
}
