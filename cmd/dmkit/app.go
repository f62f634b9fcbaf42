package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
	"dmkit-hq/dmkit/pkg/evidence/recorder"
	"dmkit-hq/dmkit/pkg/evidence/retention"
	"dmkit-hq/dmkit/pkg/evidence/storage"
	"dmkit-hq/dmkit/pkg/filewatch"
	"dmkit-hq/dmkit/pkg/functions"
	"dmkit-hq/dmkit/pkg/policy/engine"
	"dmkit-hq/dmkit/pkg/policy/manager"
	"dmkit-hq/dmkit/pkg/ratelimit"
	"dmkit-hq/dmkit/pkg/remote"
	"dmkit-hq/dmkit/pkg/security/auth"
	"dmkit-hq/dmkit/pkg/security/secrets"
	servertls "dmkit-hq/dmkit/pkg/security/tls"
	"dmkit-hq/dmkit/pkg/server"
	"dmkit-hq/dmkit/pkg/telemetry/health"
	"dmkit-hq/dmkit/pkg/telemetry/metrics"
	"dmkit-hq/dmkit/pkg/telemetry/tracing"
)

const tracerShutdownTimeout = 5 * time.Second

// app owns every long-lived component of a running server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	tracer    *tracing.Tracer
	collector *metrics.Collector
	watcher   filewatch.Watcher
	policies  *manager.Manager
	remote    *remote.ServiceManager
	engine    *engine.Engine
	store     evidence.Storage
	recorder  *recorder.Recorder
	pruner    *retention.Pruner
	certs     *servertls.CertStore
	server    *server.Server
}

// newApp builds the component graph. The initial rule set load must
// succeed. On error everything built so far is released.
func newApp(cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, registry)

	a.watcher, err = filewatch.New(&filewatch.Config{
		Mode:          cfg.Policy.WatchMode,
		Interval:      cfg.Policy.PollInterval,
		Debounce:      cfg.Policy.Debounce,
		RetryInterval: cfg.Policy.PollInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	a.policies, err = manager.New(&manager.Config{
		ProductsFile: cfg.Policy.ProductsFile,
		Strict:       cfg.Policy.Strict,
		MaxFileSize:  cfg.Policy.MaxFileSize,
	}, a.watcher, logger)
	if err != nil {
		return nil, err
	}
	a.policies.SetObserver(a.collector)
	if err = a.policies.Start(); err != nil {
		return nil, err
	}

	fns := functions.NewRegistry(logger)
	functions.RegisterBuiltins(fns)
	if cfg.Policy.DemoFunctions {
		functions.RegisterDemo(fns)
	}
	fns.SetObserver(a.collector)

	if cfg.Remote.ServicesFile != "" {
		a.remote = remote.NewServiceManager(nil, logger)
		a.remote.SetObserver(a.collector)
		if err = a.remote.LoadFile(cfg.Remote.ServicesFile); err != nil {
			return nil, fmt.Errorf("failed to load remote services: %w", err)
		}
		if cfg.Remote.Watch {
			if err = a.remote.Watch(a.watcher); err != nil {
				return nil, err
			}
		}
	}

	a.engine, err = engine.New(a.policies.Store(), fns, &engine.Config{
		NotInFailOpen: cfg.Policy.NotInFailOpen,
		Tracer:        a.tracer.Tracer(),
	}, logger)
	if err != nil {
		return nil, err
	}
	a.engine.SetObserver(a.collector)

	checker := health.New(0)
	checker.Register("ruleset", health.RuleSetCheck(a.policies))

	opts := server.Options{
		Resolver: a.engine,
		Health:   checker,
		Version:  versionInfo(),
		Rejects:  a.collector,
	}
	if cfg.Server.RateLimit.Enabled() {
		opts.Limiter = ratelimit.New(ratelimit.FromConfig(cfg.Server.RateLimit))
	}
	if cfg.Server.Auth.Enabled {
		authCfg, err := resolveKeySecrets(context.Background(), cfg.Server.Auth, logger)
		if err != nil {
			return nil, err
		}
		opts.Auth = auth.FromConfig(authCfg)
		opts.AuthHeader = authCfg.Header
	}
	if a.remote != nil {
		opts.Remote = a.remote
	}
	if cfg.Server.TLS.Enabled {
		a.certs = servertls.NewCertStore(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, logger)
		if err := a.certs.Load(); err != nil {
			return nil, err
		}
		if err := a.certs.Watch(a.watcher); err != nil {
			return nil, err
		}
		if opts.TLS, err = servertls.Build(cfg.Server.TLS, a.certs); err != nil {
			return nil, err
		}
	}
	if cfg.Telemetry.Metrics.Enabled {
		opts.Metrics = a.collector.Handler()
		opts.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	if cfg.Evidence.Enabled {
		a.store, err = storage.Open(cfg.Evidence, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open turn journal: %w", err)
		}
		checker.Register("journal", health.PingCheck(a.store))

		a.recorder = recorder.NewRecorder(a.store, recorder.FromConfig(cfg.Evidence), logger)
		a.recorder.SetObserver(a.collector)
		opts.Journal = a.recorder

		a.pruner = retention.NewPruner(a.store, retention.FromConfig(cfg.Evidence.Retention), logger)
		a.pruner.SetObserver(a.collector)
	}

	a.server, err = server.New(&cfg.Server, opts, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// resolveKeySecrets returns cfg with every ${secret:name} key replaced by
// its value.
func resolveKeySecrets(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (config.AuthConfig, error) {
	var providers []secrets.Provider
	if cfg.SecretsDir != "" {
		fp, err := secrets.NewFileProvider(cfg.SecretsDir)
		if err != nil {
			return cfg, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, secrets.NewEnvProvider(""))
	m := secrets.NewManager(providers, logger)

	keys := make([]config.APIKeyConfig, len(cfg.Keys))
	for i, k := range cfg.Keys {
		if secrets.IsReference(k.Key) {
			value, err := m.Expand(ctx, k.Key)
			if err != nil {
				return cfg, fmt.Errorf("api key %q: %w", k.Name, err)
			}
			k.Key = value
		}
		keys[i] = k
	}
	cfg.Keys = keys
	return cfg, nil
}

// run serves until ctx is canceled or a component fails, then releases
// every component.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})
	if a.pruner != nil {
		g.Go(func() error {
			return a.pruner.Run(gctx)
		})
	}

	err := g.Wait()
	a.close()
	return err
}

// close stops components in reverse dependency order. It tolerates a
// partially built app.
func (a *app) close() {
	var errs []error
	if a.certs != nil {
		errs = append(errs, a.certs.Close())
	}
	if a.policies != nil {
		errs = append(errs, a.policies.Close())
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Shutdown completed with errors", "error", err)
	}
}
