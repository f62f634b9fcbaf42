package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"dmkit-hq/dmkit/pkg/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"", 3},
		{"WARN", 2},
		{"error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Config{Level: tt.level, Format: "json", Writer: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			if got := len(decodeLines(t, &buf)); got != tt.want {
				t.Errorf("lines = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("New() with unknown level error = nil, want error")
	}
	if _, err := New(Config{Format: "console"}); err == nil {
		t.Error("New() with unknown format error = nil, want error")
	}
	if _, err := New(Config{RedactPII: true, RedactPatterns: []config.RedactPattern{{Name: "bad", Pattern: "[unclosed"}}}); err == nil {
		t.Error("New() with invalid redact pattern error = nil, want error")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("Rule set loaded", "version", "abc")

	if got := buf.String(); !strings.Contains(got, `msg="Rule set loaded"`) || !strings.Contains(got, "version=abc") {
		t.Errorf("output = %q, want text record", got)
	}
}

func TestNew_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = WithProduct(WithLogID(ctx, "dmkit_123"), "default")

	logger.InfoContext(ctx, "Turn resolved", "domain", "billing")
	logger.Info("No context")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	want := map[string]string{
		"log_id":   "dmkit_123",
		"product":  "default",
		"domain":   "billing",
		"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
		"span_id":  "00f067aa0ba902b7",
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("%s = %v, want %q", k, lines[0][k], v)
		}
	}
	if _, ok := lines[1]["log_id"]; ok {
		t.Error("record without context carries log_id")
	}
}

func TestNew_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		RedactPII: true,
		Writer:    &buf,
		RedactPatterns: []config.RedactPattern{
			{Name: "order", Pattern: `ORD-\d+`, Replacement: "ORD-***"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.With("authorization", "Bearer abcdef").Info("Call from 13812345678",
		"query", "mail me at alice@example.com about ORD-42",
		"error", errors.New("dial 10.1.2.3 refused"),
		"count", 3,
	)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	line := lines[0]
	if got := line["msg"]; got != "Call from 1**********" {
		t.Errorf("msg = %v", got)
	}
	if got := line["query"]; got != "mail me at ***@example.com about ORD-***" {
		t.Errorf("query = %v", got)
	}
	if got := line["error"]; got != "dial 10.*.*.* refused" {
		t.Errorf("error = %v", got)
	}
	if got := line["authorization"]; got != "Bear***" {
		t.Errorf("authorization = %v, want masked", got)
	}
	if got := line["count"]; got != float64(3) {
		t.Errorf("count = %v, want 3", got)
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email", "bob@corp.cn", "***@corp.cn"},
		{"mobile", "tel 13912345678.", "tel 1**********."},
		{"id card", "id 11010519491231002X", "id ******************"},
		{"ipv4", "from 192.168.1.10", "from 192.*.*.*"},
		{"bearer", "Bearer eyJhbGciOi.x", "Bearer ***"},
		{"password", "password=hunter2&x=1", "password=***&x=1"},
		{"plain", "check my balance", "check my balance"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
