package auth

import (
	"crypto/sha256"
	"sync"

	"dmkit-hq/dmkit/pkg/config"
)

// Validator checks API keys against a configured set. Keys are indexed by
// digest so lookups do not compare secrets byte by byte.
type Validator struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]*APIKey
}

// NewValidator creates a validator for keys.
func NewValidator(keys []*APIKey) *Validator {
	v := &Validator{keys: make(map[[sha256.Size]byte]*APIKey, len(keys))}
	for _, k := range keys {
		v.keys[sha256.Sum256([]byte(k.Key))] = k
	}
	return v
}

// FromConfig converts the server auth key list.
func FromConfig(cfg config.AuthConfig) *Validator {
	keys := make([]*APIKey, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys = append(keys, &APIKey{
			Name:     k.Name,
			Key:      k.Key,
			Enabled:  !k.Disabled,
			Products: k.Products,
		})
	}
	return NewValidator(keys)
}

// Validate returns the key matching raw.
func (v *Validator) Validate(raw string) (*APIKey, error) {
	if raw == "" {
		return nil, ErrMissingKey
	}

	v.mu.RLock()
	info, ok := v.keys[sha256.Sum256([]byte(raw))]
	v.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKey
	}
	if !info.Enabled {
		return nil, ErrKeyDisabled
	}
	return info, nil
}

// Len returns the number of configured keys.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
