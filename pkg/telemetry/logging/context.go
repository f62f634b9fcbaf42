package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	logIDKey   contextKey = "log_id"
	productKey contextKey = "product"
)

// WithLogID stores the request log id in ctx.
func WithLogID(ctx context.Context, logID string) context.Context {
	return context.WithValue(ctx, logIDKey, logID)
}

// GetLogID returns the log id stored in ctx, or "".
func GetLogID(ctx context.Context) string {
	if v, ok := ctx.Value(logIDKey).(string); ok {
		return v
	}
	return ""
}

// WithProduct stores the product being resolved in ctx.
func WithProduct(ctx context.Context, product string) context.Context {
	return context.WithValue(ctx, productKey, product)
}

// GetProduct returns the product stored in ctx, or "".
func GetProduct(ctx context.Context) string {
	if v, ok := ctx.Value(productKey).(string); ok {
		return v
	}
	return ""
}

// contextAttrs returns the request-scoped attributes carried by ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id := GetLogID(ctx); id != "" {
		attrs = append(attrs, slog.String("log_id", id))
	}
	if p := GetProduct(ctx); p != "" {
		attrs = append(attrs, slog.String("product", p))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// ContextHandler adds request-scoped attributes from the record's context.
// Only the *Context logging methods carry a context.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
