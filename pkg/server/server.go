package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/ratelimit"
	"dmkit-hq/dmkit/pkg/security/auth"
	"dmkit-hq/dmkit/pkg/telemetry/health"
	"dmkit-hq/dmkit/pkg/telemetry/tracing"
)

const resolvePath = "/v1/dm/resolve"

// Resolver resolves one dialog turn. *engine.Engine implements it.
type Resolver interface {
	Resolve(ctx context.Context, product string, qus model.QUSet, session model.Session, rc *model.RequestContext) (*model.ResolvedOutput, error)
}

// Options are the collaborators of a Server. Only Resolver is required.
type Options struct {
	Resolver Resolver

	// Journal records every turn when set.
	Journal Journal

	// Remote is handed to user functions through the request context.
	Remote model.RemoteCaller

	// Health serves /health and /ready when set.
	Health *health.Checker

	// Version is reported at /version.
	Version health.VersionInfo

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	// Limiter applies per-product admission limits when set.
	Limiter *ratelimit.Limiter

	// Auth requires an API key in AuthHeader on the resolve endpoint
	// when set.
	Auth       *auth.Validator
	AuthHeader string

	// Rejects is told about every request refused before resolution.
	Rejects RejectObserver

	// TLS serves HTTPS when set. Its GetCertificate or Certificates must
	// provide the server certificate.
	TLS *tls.Config
}

// RejectObserver receives the reason for each refused resolve request.
type RejectObserver interface {
	ObserveReject(reason string)
}

// Server is the dmkit HTTP server.
type Server struct {
	config     *config.ServerConfig
	handler    http.Handler
	tls        *tls.Config
	logger     *slog.Logger
	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// New builds the server and its routes.
func New(cfg *config.ServerConfig, opts Options, logger *slog.Logger) (*Server, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	mux := http.NewServeMux()
	var resolve http.Handler = NewResolveHandler(opts, cfg.MaxBodyBytes, logger)
	if opts.Auth != nil {
		header := opts.AuthHeader
		if header == "" {
			header = config.DefaultAuthHeader
		}
		resolve = auth.Middleware(opts.Auth, header, logger)(resolve)
	}
	mux.Handle(resolvePath, resolve)
	if opts.Health != nil {
		health.Register(mux, opts.Health, opts.Version)
	}
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle(path, opts.Metrics)
	}

	var h http.Handler = mux
	h = tracing.HTTPMiddleware(h)
	h = loggingMiddleware(logger, h)
	h = recoveryMiddleware(logger, h)

	return &Server{config: cfg, handler: h, tls: opts.TLS, logger: logger}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address once Run is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		TLSConfig:    s.tls,
	}

	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.httpServer = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "address", ln.Addr().String(), "tls", s.tls != nil)
		if s.tls != nil {
			errCh <- srv.ServeTLS(ln, "", "")
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", "timeout", s.config.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("HTTP server stopped")
	return nil
}
