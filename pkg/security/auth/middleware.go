package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithAPIKey returns a context carrying the authenticated key.
func WithAPIKey(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}

// FromContext returns the authenticated key, or nil.
func FromContext(ctx context.Context) *APIKey {
	key, _ := ctx.Value(contextKey{}).(*APIKey)
	return key
}

// Middleware rejects requests without a valid key in header with 401 and
// stores the key in the request context otherwise.
func Middleware(v *Validator, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

			key, err := v.Validate(raw)
			if err != nil {
				logger.Warn("Rejected request",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="dmkit"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{"error_code": -1, "error_msg": "Unauthorized"})
				return
			}

			logger.Debug("API key authenticated", "key_name", key.Name, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
		})
	}
}
