package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
)

func TestNewApp_ServesResolveAndJournals(t *testing.T) {
	cfg := testConfig(t, writeProducts(t))
	cfg.Evidence.Enabled = true
	cfg.Evidence.Backend = "memory"

	a, err := newApp(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	req := httptest.NewRequest(http.MethodPost, "/v1/dm/resolve", strings.NewReader(balanceRequest))
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ErrorCode int    `json:"error_code"`
		LogID     string `json:"log_id"`
		Result    struct {
			Result []map[string]string `json:"result"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.ErrorCode != 0 || resp.LogID != "dmkit_t1" {
		t.Errorf("response = %+v, want error_code 0 and log_id dmkit_t1", resp)
	}
	if len(resp.Result.Result) != 1 || resp.Result.Result[0]["value"] != "Account 42" {
		t.Errorf("result = %v, want Account 42", resp.Result.Result)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := a.store.Count(context.Background(), &evidence.Query{LogID: "dmkit_t1"})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal has %d records for dmkit_t1, want 1", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewApp_Endpoints(t *testing.T) {
	a, err := newApp(testConfig(t, writeProducts(t)), discardLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/version", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestNewApp_FailsWithoutRuleSet(t *testing.T) {
	cfg := testConfig(t, t.TempDir()+"/missing.json")

	if _, err := newApp(cfg, discardLogger()); err == nil {
		t.Fatal("newApp() expected error for missing products file")
	}
}

func TestNewApp_FailsOnBadServicesFile(t *testing.T) {
	cfg := testConfig(t, writeProducts(t))
	cfg.Remote.ServicesFile = writeFile(t, t.TempDir(), "services.json", `{not json`)

	if _, err := newApp(cfg, discardLogger()); err == nil {
		t.Fatal("newApp() expected error for malformed services file")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, writeProducts(t))
	cfg.Evidence.Enabled = true
	cfg.Evidence.Backend = "memory"

	a, err := newApp(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestNewApp_Admission(t *testing.T) {
	cfg := testConfig(t, writeProducts(t))
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.Keys = []config.APIKeyConfig{{Name: "ops", Key: "k1"}}
	cfg.Server.RateLimit.RequestsPerSecond = 0.1
	cfg.Server.RateLimit.Burst = 1

	a, err := newApp(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/dm/resolve", strings.NewReader(balanceRequest))
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		rec := httptest.NewRecorder()
		a.server.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send(""); got != http.StatusUnauthorized {
		t.Errorf("without key = %d, want 401", got)
	}
	if got := send("k1"); got != http.StatusOK {
		t.Errorf("first request = %d, want 200", got)
	}
	if got := send("k1"); got != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", got)
	}
}

func TestNewApp_FailsOnMissingCertificate(t *testing.T) {
	cfg := testConfig(t, writeProducts(t))
	cfg.Server.TLS.Enabled = true
	cfg.Server.TLS.CertFile = t.TempDir() + "/server.crt"
	cfg.Server.TLS.KeyFile = t.TempDir() + "/server.key"

	if _, err := newApp(cfg, discardLogger()); err == nil {
		t.Fatal("newApp() error = nil, want certificate error")
	}
}

func TestResolveKeySecrets(t *testing.T) {
	t.Setenv("DMKIT_SECRET_OPS_KEY", "from-env")
	in := config.AuthConfig{Keys: []config.APIKeyConfig{
		{Name: "ops", Key: "${secret:ops-key}"},
		{Name: "literal", Key: "plain"},
	}}

	got, err := resolveKeySecrets(context.Background(), in, discardLogger())
	if err != nil {
		t.Fatalf("resolveKeySecrets() error = %v", err)
	}
	if got.Keys[0].Key != "from-env" || got.Keys[1].Key != "plain" {
		t.Errorf("keys = %+v", got.Keys)
	}
	if in.Keys[0].Key != "${secret:ops-key}" {
		t.Error("input config was modified")
	}

	in.Keys[0].Key = "${secret:missing}"
	if _, err := resolveKeySecrets(context.Background(), in, discardLogger()); err == nil {
		t.Error("resolveKeySecrets() error = nil for missing secret")
	}
}
