package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeRuleSet struct {
	ready bool
	err   error
}

func (f *fakeRuleSet) Ready() bool          { return f.ready }
func (f *fakeRuleSet) LastLoadError() error { return f.err }

func TestChecker_Readiness(t *testing.T) {
	rs := &fakeRuleSet{}
	c := New(time.Second)
	c.Register("ruleset", RuleSetCheck(rs))
	c.Register("store", func(context.Context) error { return nil })

	status := c.Readiness(context.Background())
	if status.Status != StatusNotReady {
		t.Errorf("Status = %q, want %q before load", status.Status, StatusNotReady)
	}
	if got := status.Checks["ruleset"].Status; got != StatusUnhealthy {
		t.Errorf("ruleset check = %q, want unhealthy", got)
	}
	if got := status.Checks["store"].Status; got != StatusOK {
		t.Errorf("store check = %q, want ok", got)
	}

	rs.ready = true
	rs.err = errors.New("reload failed")
	if status := c.Readiness(context.Background()); status.Status != StatusReady {
		t.Errorf("Status = %q, want ready while a generation is live", status.Status)
	}
}

func TestRuleSetCheck_Message(t *testing.T) {
	check := RuleSetCheck(&fakeRuleSet{err: errors.New("parse error")})
	err := check(context.Background())
	if err == nil || err.Error() != "no rule set loaded: parse error" {
		t.Errorf("check() = %v, want wrapped load error", err)
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	status := c.Readiness(context.Background())
	if got := status.Checks["slow"]; got.Status != StatusUnhealthy || got.Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v, want timeout", got)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	rs := &fakeRuleSet{}
	c.Register("ruleset", RuleSetCheck(rs))

	mux := http.NewServeMux()
	Register(mux, c, VersionInfo{Version: "1.0.0", Commit: "abc"})

	tests := []struct {
		name   string
		method string
		path   string
		ready  bool
		want   int
	}{
		{"liveness", http.MethodGet, "/health", false, http.StatusOK},
		{"not ready", http.MethodGet, "/ready", false, http.StatusServiceUnavailable},
		{"ready", http.MethodGet, "/ready", true, http.StatusOK},
		{"version", http.MethodGet, "/version", false, http.StatusOK},
		{"wrong method", http.MethodPost, "/health", false, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs.ready = tt.ready
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info.Version != "1.0.0" || info.GoVersion == "" {
		t.Errorf("version = %+v", info)
	}
}
