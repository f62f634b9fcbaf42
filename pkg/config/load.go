package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from the YAML file at path, applies
// defaults and validates the result. Environment variables are ignored; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
// The result is not validated.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and then
// applies DMKIT_SECTION_FIELD environment variables, which always win over
// the file. An empty path starts from the defaults.
//
// The loading sequence is:
//  1. Defaults
//  2. YAML file
//  3. Environment variable overrides
//  4. Validation
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// envOverride binds one environment variable to a configuration field.
type envOverride struct {
	name  string
	apply func(val string) error
}

func stringVar(dst *string) func(string) error {
	return func(val string) error {
		*dst = val
		return nil
	}
}

func boolVar(dst *bool) func(string) error {
	return func(val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func intVar(dst *int) func(string) error {
	return func(val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func int64Var(dst *int64) func(string) error {
	return func(val string) error {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func floatVar(dst *float64) func(string) error {
	return func(val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func durationVar(dst *time.Duration) func(string) error {
	return func(val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func overrides(cfg *Config) []envOverride {
	return []envOverride{
		{"DMKIT_SERVER_LISTEN_ADDRESS", stringVar(&cfg.Server.ListenAddress)},
		{"DMKIT_SERVER_READ_TIMEOUT", durationVar(&cfg.Server.ReadTimeout)},
		{"DMKIT_SERVER_WRITE_TIMEOUT", durationVar(&cfg.Server.WriteTimeout)},
		{"DMKIT_SERVER_IDLE_TIMEOUT", durationVar(&cfg.Server.IdleTimeout)},
		{"DMKIT_SERVER_SHUTDOWN_TIMEOUT", durationVar(&cfg.Server.ShutdownTimeout)},
		{"DMKIT_SERVER_MAX_BODY_BYTES", int64Var(&cfg.Server.MaxBodyBytes)},
		{"DMKIT_SERVER_RATE_LIMIT_REQUESTS_PER_SECOND", floatVar(&cfg.Server.RateLimit.RequestsPerSecond)},
		{"DMKIT_SERVER_RATE_LIMIT_BURST", intVar(&cfg.Server.RateLimit.Burst)},
		{"DMKIT_SERVER_RATE_LIMIT_MAX_CONCURRENT", intVar(&cfg.Server.RateLimit.MaxConcurrent)},
		{"DMKIT_SERVER_AUTH_ENABLED", boolVar(&cfg.Server.Auth.Enabled)},
		{"DMKIT_SERVER_TLS_ENABLED", boolVar(&cfg.Server.TLS.Enabled)},
		{"DMKIT_SERVER_TLS_CERT_FILE", stringVar(&cfg.Server.TLS.CertFile)},
		{"DMKIT_SERVER_TLS_KEY_FILE", stringVar(&cfg.Server.TLS.KeyFile)},

		{"DMKIT_POLICY_PRODUCTS_FILE", stringVar(&cfg.Policy.ProductsFile)},
		{"DMKIT_POLICY_WATCH_MODE", stringVar(&cfg.Policy.WatchMode)},
		{"DMKIT_POLICY_POLL_INTERVAL", durationVar(&cfg.Policy.PollInterval)},
		{"DMKIT_POLICY_DEBOUNCE", durationVar(&cfg.Policy.Debounce)},
		{"DMKIT_POLICY_STRICT", boolVar(&cfg.Policy.Strict)},
		{"DMKIT_POLICY_NOT_IN_FAIL_OPEN", boolVar(&cfg.Policy.NotInFailOpen)},
		{"DMKIT_POLICY_MAX_FILE_SIZE", int64Var(&cfg.Policy.MaxFileSize)},
		{"DMKIT_POLICY_DEMO_FUNCTIONS", boolVar(&cfg.Policy.DemoFunctions)},

		{"DMKIT_REMOTE_SERVICES_FILE", stringVar(&cfg.Remote.ServicesFile)},
		{"DMKIT_REMOTE_WATCH", boolVar(&cfg.Remote.Watch)},

		{"DMKIT_EVIDENCE_ENABLED", boolVar(&cfg.Evidence.Enabled)},
		{"DMKIT_EVIDENCE_BACKEND", stringVar(&cfg.Evidence.Backend)},
		{"DMKIT_EVIDENCE_SQLITE_DRIVER", stringVar(&cfg.Evidence.SQLite.Driver)},
		{"DMKIT_EVIDENCE_SQLITE_PATH", stringVar(&cfg.Evidence.SQLite.Path)},
		{"DMKIT_EVIDENCE_ASYNC_BUFFER", intVar(&cfg.Evidence.AsyncBuffer)},
		{"DMKIT_EVIDENCE_RETENTION_DAYS", intVar(&cfg.Evidence.Retention.Days)},
		{"DMKIT_EVIDENCE_RETENTION_MAX_RECORDS", int64Var(&cfg.Evidence.Retention.MaxRecords)},
		{"DMKIT_EVIDENCE_RETENTION_PRUNE_SCHEDULE", stringVar(&cfg.Evidence.Retention.PruneSchedule)},

		{"DMKIT_TELEMETRY_LOGGING_LEVEL", stringVar(&cfg.Telemetry.Logging.Level)},
		{"DMKIT_TELEMETRY_LOGGING_FORMAT", stringVar(&cfg.Telemetry.Logging.Format)},
		{"DMKIT_TELEMETRY_LOGGING_ADD_SOURCE", boolVar(&cfg.Telemetry.Logging.AddSource)},
		{"DMKIT_TELEMETRY_LOGGING_REDACT_PII", boolVar(&cfg.Telemetry.Logging.RedactPII)},
		{"DMKIT_TELEMETRY_METRICS_ENABLED", boolVar(&cfg.Telemetry.Metrics.Enabled)},
		{"DMKIT_TELEMETRY_METRICS_PATH", stringVar(&cfg.Telemetry.Metrics.Path)},
		{"DMKIT_TELEMETRY_TRACING_ENABLED", boolVar(&cfg.Telemetry.Tracing.Enabled)},
		{"DMKIT_TELEMETRY_TRACING_ENDPOINT", stringVar(&cfg.Telemetry.Tracing.Endpoint)},
		{"DMKIT_TELEMETRY_TRACING_SAMPLER", stringVar(&cfg.Telemetry.Tracing.Sampler)},
		{"DMKIT_TELEMETRY_TRACING_SAMPLE_RATIO", floatVar(&cfg.Telemetry.Tracing.SampleRatio)},
	}
}

// applyEnvOverrides applies DMKIT_* environment variables. A variable that
// is set but malformed is an error rather than being silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range overrides(cfg) {
		val, ok := os.LookupEnv(o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			errs = append(errs, FieldError{
				Field:   o.name,
				Message: fmt.Sprintf("invalid value %q: %v", val, err),
			})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
