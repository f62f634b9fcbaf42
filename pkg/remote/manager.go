// Package remote issues HTTP calls against named backend services on behalf
// of user functions.
//
// Services are declared in a JSON file keyed by service name:
//
//	{
//	  "weather": {
//	    "naming_service_url": "http://weather.internal:8080",
//	    "protocol": "http",
//	    "timeout_ms": 500,
//	    "retry": 2,
//	    "headers": {"Content-Type": "application/json"}
//	  }
//	}
//
// The service table is swapped atomically when the file is reloaded, so a
// reload never disturbs calls already in flight.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dmkit-hq/dmkit/pkg/filewatch"
	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/telemetry/tracing"
)

// ErrUnknownService is returned when a call names an undeclared service.
var ErrUnknownService = errors.New("unknown service")

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// StatusError reports a non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("service %q returned HTTP %d", e.Service, e.StatusCode)
}

// Service is one declared backend.
type Service struct {
	Name     string
	BaseURL  *url.URL
	Timeout  time.Duration
	MaxRetry int
	Headers  []model.KV
}

// serviceConfig is the on-disk form of a Service.
type serviceConfig struct {
	NamingServiceURL string       `json:"naming_service_url"`
	LoadBalancerName string       `json:"load_balancer_name"`
	Protocol         string       `json:"protocol"`
	TimeoutMS        *int         `json:"timeout_ms"`
	Retry            *int         `json:"retry"`
	Headers          model.KVList `json:"headers"`
}

// Observer receives the outcome of every call.
type Observer interface {
	ObserveRemoteCall(service string, err error, duration time.Duration)
}

// ServiceManager holds the service table and performs calls.
type ServiceManager struct {
	services atomic.Pointer[map[string]*Service]
	client   *http.Client
	logger   *slog.Logger
	observer Observer

	mu     sync.Mutex
	path   string
	handle filewatch.Handle
}

// NewServiceManager creates a manager with an empty service table. A nil
// client uses a default http.Client; per-call timeouts come from each
// service's configuration.
func NewServiceManager(client *http.Client, logger *slog.Logger) *ServiceManager {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &ServiceManager{
		client: client,
		logger: logger.With("component", "remote"),
	}
	empty := make(map[string]*Service)
	m.services.Store(&empty)
	return m
}

// SetObserver installs an observer for call outcomes. It must be called
// before the manager is shared.
func (m *ServiceManager) SetObserver(o Observer) {
	m.observer = o
}

// LoadFile reads and installs the service table at path.
func (m *ServiceManager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read service config %q: %w", path, err)
	}
	if err := m.Load(data); err != nil {
		return fmt.Errorf("service config %q: %w", path, err)
	}

	m.mu.Lock()
	m.path = path
	m.mu.Unlock()
	return nil
}

// Load parses and installs a service table. Invalid entries are skipped
// with an error log; only a document that is not a JSON object fails.
func (m *ServiceManager) Load(data []byte) error {
	services := make(map[string]*Service)

	err := model.DecodeOrderedObject(data, func(name string, raw json.RawMessage) error {
		svc, err := parseService(name, raw)
		if err != nil {
			m.logger.Error("Invalid service settings, skipped", "service", name, "error", err)
			return nil
		}
		services[name] = svc
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalid service config: %w", err)
	}

	m.services.Store(&services)
	m.logger.Info("Service table loaded", "services", len(services))
	return nil
}

func parseService(name string, raw json.RawMessage) (*Service, error) {
	var cfg serviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.NamingServiceURL == "" {
		return nil, fmt.Errorf("naming_service_url is required")
	}
	if cfg.Protocol != "http" {
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
	if cfg.TimeoutMS == nil || *cfg.TimeoutMS <= 0 {
		return nil, fmt.Errorf("timeout_ms must be a positive integer")
	}
	if cfg.Retry == nil || *cfg.Retry < 0 {
		return nil, fmt.Errorf("retry must be a non-negative integer")
	}

	base, err := url.Parse(cfg.NamingServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid naming_service_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("naming_service_url must be http or https, got %q", base.Scheme)
	}

	return &Service{
		Name:     name,
		BaseURL:  base,
		Timeout:  time.Duration(*cfg.TimeoutMS) * time.Millisecond,
		MaxRetry: *cfg.Retry,
		Headers:  cfg.Headers,
	}, nil
}

// Watch reloads the service table whenever the loaded file changes.
func (m *ServiceManager) Watch(w filewatch.Watcher) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return fmt.Errorf("no service config file loaded")
	}
	if m.handle != nil {
		return nil
	}

	path := m.path
	h, err := w.Watch(path, func() error {
		if err := m.LoadFile(path); err != nil {
			m.logger.Warn("Service config reload failed, keeping previous table", "error", err)
			return err
		}
		return nil
	}, false)
	if err != nil {
		return fmt.Errorf("failed to watch service config: %w", err)
	}
	m.handle = h
	return nil
}

// Close stops watching the service file.
func (m *ServiceManager) Close() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h != nil {
		return h.Close()
	}
	return nil
}

// Service returns the named service.
func (m *ServiceManager) Service(name string) (*Service, bool) {
	svc, ok := (*m.services.Load())[name]
	return svc, ok
}

// Len returns the number of declared services.
func (m *ServiceManager) Len() int {
	return len(*m.services.Load())
}

// Call issues req against the named service. Transport errors and 5xx
// responses are retried up to the service's retry count.
func (m *ServiceManager) Call(ctx context.Context, service string, req model.RemoteRequest) (body string, err error) {
	start := time.Now()
	defer func() {
		if m.observer != nil {
			m.observer.ObserveRemoteCall(service, err, time.Since(start))
		}
	}()

	svc, ok := m.Service(service)
	if !ok {
		m.logger.Error("Remote service call failed, service not found", "service", service)
		return "", fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	target, err := svc.resolve(req.URL)
	if err != nil {
		return "", err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	attempts := svc.MaxRetry + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		var retryable bool
		body, retryable, err = m.do(ctx, svc, method, target, req.Body)
		if err == nil {
			m.logger.Debug("Remote service call succeeded",
				"service", service,
				"url", target,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return body, nil
		}
		if !retryable || ctx.Err() != nil {
			break
		}
		m.logger.Debug("Remote service call failed, retrying", "service", service, "attempt", attempt, "error", err)
	}

	m.logger.Warn("Remote service call failed", "service", service, "url", target, "error", err)
	return "", err
}

func (m *ServiceManager) do(ctx context.Context, svc *Service, method, target, payload string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.Timeout)
	defer cancel()

	var reader io.Reader
	if method == http.MethodPost || payload != "" {
		reader = strings.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	for _, h := range svc.Headers {
		httpReq.Header.Add(h.Key, h.Value)
	}
	tracing.Inject(ctx, httpReq.Header)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("request to %q failed: %w", svc.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", true, fmt.Errorf("failed to read response from %q: %w", svc.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode >= 500, &StatusError{Service: svc.Name, StatusCode: resp.StatusCode}
	}
	return string(data), false, nil
}

// resolve joins a request path onto the service base URL. Absolute URLs are
// used unchanged.
func (s *Service) resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	return s.BaseURL.ResolveReference(ref).String(), nil
}
