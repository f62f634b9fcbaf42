package config

import "time"

// Config is the complete dmkit process configuration.
type Config struct {
	// Server contains the HTTP listener configuration.
	Server ServerConfig `yaml:"server"`

	// Policy contains the rule set source and reload configuration.
	Policy PolicyConfig `yaml:"policy"`

	// Remote contains the backend service table used by user functions.
	Remote RemoteConfig `yaml:"remote"`

	// Evidence contains the turn journal configuration.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains the HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address the HTTP server binds to.
	// Default: "127.0.0.1:8010"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is how long keep-alive connections stay open.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits the size of a resolve request body.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// RateLimit contains resolve admission limits.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Auth contains API key authentication for the resolve endpoint.
	Auth AuthConfig `yaml:"auth"`

	// TLS serves every endpoint over HTTPS when enabled.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains HTTPS listener configuration.
type TLSConfig struct {
	// Enabled serves HTTPS instead of HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate chain. It is reloaded when it changes.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the lowest accepted protocol version.
	// Options: "1.2", "1.3"
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ClientCAFile enables client certificate verification against the
	// CAs it contains.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth controls whether a client certificate is mandatory.
	// Options: "require", "verify_if_given"
	// Default: "require"
	ClientAuth string `yaml:"client_auth"`
}

// RateLimitConfig contains resolve admission limits. Zero disables a limit.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per product.
	// Default: 0
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the per-product burst size.
	// Default: twice RequestsPerSecond
	Burst int `yaml:"burst"`

	// MaxConcurrent caps in-flight resolves across all products.
	// Default: 0
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Enabled reports whether any limit is set.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0 || c.MaxConcurrent > 0
}

// AuthConfig contains API key authentication configuration. Health,
// version and metrics endpoints are never authenticated.
type AuthConfig struct {
	// Enabled requires a valid API key on every resolve request.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Header carries the key. A "Bearer " prefix is accepted.
	// Default: "Authorization"
	Header string `yaml:"header"`

	// Keys lists the accepted API keys.
	Keys []APIKeyConfig `yaml:"keys"`

	// SecretsDir holds one file per secret for ${secret:name} key
	// references. References are also looked up in DMKIT_SECRET_<NAME>.
	SecretsDir string `yaml:"secrets_dir"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	// Name identifies the caller in logs.
	Name string `yaml:"name"`

	// Key is the secret value, or a ${secret:name} reference to it.
	Key string `yaml:"key"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`

	// Products restricts the key to these products. Empty allows all.
	Products []string `yaml:"products"`
}

// PolicyConfig contains rule set loading configuration.
type PolicyConfig struct {
	// ProductsFile is the products index file. Domain conf_path entries are
	// resolved relative to its directory.
	// Default: "conf/dm/products.json"
	ProductsFile string `yaml:"products_file"`

	// WatchMode selects how the products file is watched.
	// Options: "poll", "notify"
	// Default: "poll"
	WatchMode string `yaml:"watch_mode"`

	// PollInterval is the modification-time poll period.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval"`

	// Debounce is the quiet period before a notify-mode reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// Strict rejects the whole rule set when any policy is invalid instead
	// of skipping the invalid policy.
	// Default: false
	Strict bool `yaml:"strict"`

	// NotInFailOpen makes a not_in assertion pass when its list cannot be
	// resolved.
	// Default: true
	NotInFailOpen bool `yaml:"not_in_fail_open"`

	// MaxFileSize limits each products or domain file in bytes.
	// Default: 10485760 (10MB)
	MaxFileSize int64 `yaml:"max_file_size"`

	// DemoFunctions registers the demo user functions.
	// Default: false
	DemoFunctions bool `yaml:"demo_functions"`
}

// RemoteConfig contains remote service configuration.
type RemoteConfig struct {
	// ServicesFile is the JSON service table. Empty disables remote calls.
	// Default: ""
	ServicesFile string `yaml:"services_file"`

	// Watch reloads the service table when the file changes.
	// Default: true
	Watch bool `yaml:"watch"`
}

// EvidenceConfig contains turn journal configuration.
type EvidenceConfig struct {
	// Enabled controls whether resolved turns are recorded.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// AsyncBuffer is the recorder channel size.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds each storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention contains journal pruning configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite backend configuration.
type SQLiteConfig struct {
	// Driver selects the database/sql driver.
	// Options: "sqlite3" (cgo), "sqlite" (pure Go)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file path.
	// Default: "data/turns.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains journal pruning configuration.
type RetentionConfig struct {
	// Days is how long records are kept. 0 keeps them forever.
	// Default: 30
	Days int `yaml:"days"`

	// MaxRecords caps the journal size. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a cron expression for pruning runs.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII masks e-mail addresses, mobile numbers and credentials in
	// log output.
	// Default: false
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains additional redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "dmkit"
	Namespace string `yaml:"namespace"`

	// DurationBuckets are the resolve latency histogram buckets in seconds.
	// Default: [0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "dmkit"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the export timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
