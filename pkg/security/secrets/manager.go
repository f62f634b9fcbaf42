package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager tries its providers in order.
type Manager struct {
	providers []Provider
	logger    *slog.Logger
}

// NewManager creates a manager over providers.
func NewManager(providers []Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{providers: providers, logger: logger.With("component", "secrets")}
}

// Get returns the value from the first provider that has name.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	for _, p := range m.providers {
		value, err := p.Lookup(ctx, name)
		if err == nil {
			m.logger.Debug("Secret resolved", "name", redact(name), "provider", p.Name())
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("secret %q from %s: %w", name, p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Expand replaces every ${secret:name} in s. Strings without references
// are returned unchanged.
func (m *Manager) Expand(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		value, err := m.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return value
	})
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return out, nil
}

// IsReference reports whether s contains a secret reference.
func IsReference(s string) bool {
	return refPattern.MatchString(s)
}

func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
