package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"dmkit-hq/dmkit/pkg/config"
)

const balancePolicies = `[
  {
    "trigger": {"intent": "INTENT_BALANCE", "slots": ["user_account"]},
    "params": [
      {"name": "account", "type": "slot_val", "value": "user_account"}
    ],
    "output": [
      {
        "session": {"state": "balance_shown", "context": {"account": "{%account%}"}},
        "result": [{"type": "tts", "value": "Account {%account%}"}]
      }
    ]
  }
]`

const balanceRequest = `{
  "log_id": "t1",
  "query": "balance of 42",
  "qu": [{"domain": "billing", "intent": "INTENT_BALANCE", "slots": [{"key": "user_account", "value": "42"}]}]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// writeProducts lays out a one-domain rule set and returns the index path.
func writeProducts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "billing.json", balancePolicies)
	return writeFile(t, dir, "products.json", `{"default": {"billing": {"score": 1, "conf_path": "billing.json"}}}`)
}

func testConfig(t *testing.T, productsFile string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Policy.ProductsFile = productsFile
	cfg.Telemetry.Metrics.Enabled = true
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCommand returns a detached command with captured output.
func testCommand(stdin string) (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetContext(context.Background())
	return cmd, &out
}

// withConfigFile points --config at path for the duration of the test.
func withConfigFile(t *testing.T, path string) {
	t.Helper()
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestRootCommand(t *testing.T) {
	want := map[string]bool{"run": false, "validate": false, "resolve": false, "journal": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	if f := rootCmd.PersistentFlags().Lookup("config"); f == nil || f.DefValue != "" {
		t.Errorf("--config flag = %+v, want empty default", f)
	}
}

func TestLoadConfig_Verbose(t *testing.T) {
	withConfigFile(t, "")
	prev := verbose
	verbose = true
	defer func() { verbose = prev }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
	if config.GetConfig() != cfg {
		t.Error("loadConfig() did not publish the configuration")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	withConfigFile(t, filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() expected error for missing file")
	}
}
