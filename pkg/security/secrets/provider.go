// Package secrets resolves ${secret:name} references in configuration
// values from the environment or a directory of secret files.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider looks up one secret by name.
type Provider interface {
	// Lookup returns the secret value or an error wrapping ErrNotFound.
	Lookup(ctx context.Context, name string) (string, error)

	// Name identifies the provider in logs.
	Name() string
}
