package auth

import (
	"errors"
	"slices"
)

// Authentication failures.
var (
	ErrMissingKey  = errors.New("missing API key")
	ErrInvalidKey  = errors.New("invalid API key")
	ErrKeyDisabled = errors.New("API key disabled")
)

// APIKey is an accepted caller credential.
type APIKey struct {
	Name     string
	Key      string
	Enabled  bool
	Products []string
}

// Allows reports whether the key may resolve turns for product.
func (k *APIKey) Allows(product string) bool {
	return len(k.Products) == 0 || slices.Contains(k.Products, product)
}
