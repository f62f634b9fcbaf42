// Package filewatch notifies owners when files change on disk.
//
// Two implementations share the Watcher interface. PollWatcher compares
// modification times on a fixed interval. NotifyWatcher reacts to fsnotify
// events and debounces bursts. Both support level-triggered registrations:
// when the callback fails the change is considered unhandled and is offered
// again later, so a transient failure cannot swallow an update.
//
// Watchers are owned by the component that creates them. Every Watch must
// be paired with a Close of the returned Handle, and the Watcher itself is
// closed when its owner shuts down.
package filewatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Callback is invoked when a watched file changes. A non-nil error from a
// level-triggered registration leaves the change pending.
type Callback func() error

// Handle is a live registration.
type Handle interface {
	// Close stops delivering changes for the registration. It is safe to
	// call more than once.
	Close() error
}

// Watcher delivers file change callbacks.
type Watcher interface {
	// Watch registers fn for changes to path.
	Watch(path string, fn Callback, levelTriggered bool) (Handle, error)

	// Close stops the watcher and waits for in-flight callbacks to return.
	Close() error
}

// Modes accepted by New.
const (
	ModePoll   = "poll"
	ModeNotify = "notify"
)

// ErrClosed is returned by Watch after the watcher has been closed.
var ErrClosed = errors.New("watcher closed")

// Config selects and tunes a Watcher implementation.
type Config struct {
	// Mode is "poll" or "notify" (default: poll)
	Mode string

	// Interval is the modification-time poll period (default: 1s)
	Interval time.Duration

	// Debounce is the quiet period before a notify callback fires (default: 100ms)
	Debounce time.Duration

	// RetryInterval is how soon a failed level-triggered notify callback is
	// retried (default: 1s)
	RetryInterval time.Duration
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:          ModePoll,
		Interval:      time.Second,
		Debounce:      100 * time.Millisecond,
		RetryInterval: time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePoll, ModeNotify:
	default:
		return fmt.Errorf("invalid watch mode %q (must be %q or %q)", c.Mode, ModePoll, ModeNotify)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.Interval)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %v", c.Debounce)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %v", c.RetryInterval)
	}
	return nil
}

// New creates the watcher selected by cfg.Mode.
func New(cfg *Config, logger *slog.Logger) (Watcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeNotify {
		return NewNotifyWatcher(cfg, logger)
	}
	return NewPollWatcher(cfg, logger), nil
}
