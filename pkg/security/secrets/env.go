package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvPrefix is the default environment variable prefix.
const EnvPrefix = "DMKIT_SECRET_"

// EnvProvider reads a secret named "kids-app-key" from
// DMKIT_SECRET_KIDS_APP_KEY.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment provider. An empty prefix uses
// EnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = EnvPrefix
	}
	return &EnvProvider{Prefix: prefix}
}

// Lookup reads the variable for name. An empty variable counts as unset.
func (p *EnvProvider) Lookup(_ context.Context, name string) (string, error) {
	v := p.Variable(name)
	value := os.Getenv(v)
	if value == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, v)
	}
	return value, nil
}

// Variable returns the environment variable that holds name.
func (p *EnvProvider) Variable(name string) string {
	return p.Prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }
