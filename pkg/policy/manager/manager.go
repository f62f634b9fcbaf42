package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dmkit-hq/dmkit/pkg/filewatch"
	"dmkit-hq/dmkit/pkg/policy/model"
)

// Config contains configuration for the policy manager.
type Config struct {
	// ProductsFile is the product index file
	ProductsFile string

	// Strict rejects the whole rule set on any invalid domain or policy
	Strict bool

	// MaxFileSize bounds every configuration file (default: 10MB)
	MaxFileSize int64
}

// Reload outcomes reported to a ReloadObserver.
const (
	ReloadSuccess  = "success"
	ReloadFailed   = "failed"
	ReloadDeferred = "deferred"
)

// ReloadObserver receives the outcome of every load attempt.
type ReloadObserver interface {
	ObserveReload(outcome string, duration time.Duration, rs *model.RuleSet)
}

// Manager supervises the rule set: it performs the initial load and
// reloads the configuration whenever the product index changes.
type Manager struct {
	config  *Config
	loader  *Loader
	store   *Store
	watcher filewatch.Watcher
	logger  *slog.Logger

	observer ReloadObserver

	mu            sync.RWMutex
	handle        filewatch.Handle
	lastLoadTime  time.Time
	lastLoadError error
}

// New creates a policy manager. The watcher may be nil, in which case the
// rule set is only reloaded through explicit Reload calls.
func New(config *Config, watcher filewatch.Watcher, logger *slog.Logger) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.ProductsFile == "" {
		return nil, fmt.Errorf("products file cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	loaderConfig := DefaultLoaderConfig()
	loaderConfig.Strict = config.Strict
	if config.MaxFileSize > 0 {
		loaderConfig.MaxFileSize = config.MaxFileSize
	}
	loader := NewLoader(loaderConfig, logger)

	return &Manager{
		config:  config,
		loader:  loader,
		store:   NewStore(loader, logger),
		watcher: watcher,
		logger:  logger.With("component", "policy.manager"),
	}, nil
}

// SetObserver installs a reload observer. It must be called before Start.
func (m *Manager) SetObserver(o ReloadObserver) {
	m.observer = o
}

// Store returns the generation store served to the engine.
func (m *Manager) Store() *Store {
	return m.store
}

// Start performs the initial load and begins watching the product index.
// A failed initial load is fatal and returned to the caller.
func (m *Manager) Start() error {
	m.logger.Info("Loading rule set", "path", m.config.ProductsFile, "strict", m.config.Strict)

	if err := m.load(); err != nil {
		m.logger.Error("Failed to load rule set", "path", m.config.ProductsFile, "error", err)
		return fmt.Errorf("initial rule set load failed: %w", err)
	}

	if m.watcher == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return nil
	}
	h, err := m.watcher.Watch(m.config.ProductsFile, m.Reload, true)
	if err != nil {
		return fmt.Errorf("failed to watch %q: %w", m.config.ProductsFile, err)
	}
	m.handle = h
	return nil
}

// Reload attempts one reload. On any failure the previous generation stays
// active and the error is returned so a level-triggered watcher retries.
func (m *Manager) Reload() error {
	m.logger.Info("Reloading rule set", "path", m.config.ProductsFile)

	if err := m.load(); err != nil {
		if errors.Is(err, ErrGenerationInUse) {
			m.logger.Warn("Rule set reload deferred, keeping previous generation", "error", err)
		} else {
			m.logger.Warn("Rule set reload failed, keeping previous generation", "error", err)
		}
		return err
	}
	return nil
}

func (m *Manager) load() error {
	start := time.Now()
	rs, err := m.store.Reload(m.config.ProductsFile)
	duration := time.Since(start)

	m.mu.Lock()
	m.lastLoadError = err
	if err == nil {
		m.lastLoadTime = rs.LoadedAt
	}
	m.mu.Unlock()

	if m.observer != nil {
		outcome := ReloadSuccess
		switch {
		case errors.Is(err, ErrGenerationInUse):
			outcome = ReloadDeferred
		case err != nil:
			outcome = ReloadFailed
		}
		m.observer.ObserveReload(outcome, duration, rs)
	}

	if err != nil {
		return err
	}

	m.logger.Info("Rule set loaded",
		"version", rs.Version,
		"products", len(rs.Products),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Close stops watching the product index. The store stays readable.
func (m *Manager) Close() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h != nil {
		return h.Close()
	}
	return nil
}

// Version returns the content hash of the active generation.
func (m *Manager) Version() string {
	if rs := m.store.Current(); rs != nil {
		return rs.Version
	}
	return ""
}

// Ready reports whether a generation has been published.
func (m *Manager) Ready() bool {
	return m.store.Current() != nil
}

// LastLoadTime returns when the active generation was built.
func (m *Manager) LastLoadTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLoadTime
}

// LastLoadError returns the error of the most recent load attempt, or nil.
func (m *Manager) LastLoadError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLoadError
}

// Validate loads the product index without installing it.
func (m *Manager) Validate() (*Report, error) {
	_, report, err := m.loader.LoadWithReport(m.config.ProductsFile)
	return report, err
}
