package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/labkit/pkg/api"
	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/config"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/middleware"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/session"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "labkit")
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("labkit exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	health := observability.NewHealthChecker(version)

	store, err := openStore(ctx, cfg, metrics, health, logger)
	if err != nil {
		return err
	}

	verifier, login, err := newVerifier(ctx, cfg.Identity)
	if err != nil {
		_ = store.Close()
		return err
	}

	dir := directory.New(store, logger)
	resolver := session.NewResolver(dir,
		session.WithRetrySchedule(cfg.Session.RetrySchedule),
		session.WithResolverLogger(logger),
		session.WithResolverMetrics(metrics),
	)

	var routes *session.Routes
	if cfg.Session.RouteFile != "" {
		routes, err = session.WatchRoutes(ctx, cfg.Session.RouteFile, logger)
	} else {
		routes, err = session.NewRoutes(session.DefaultRouteTable())
	}
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to load route table: %w", err)
	}

	trail := audit.NewStore(store)
	auditLog := audit.NewMultiLogger(trail, audit.NewStructuredLogger(logger))
	reportCtx, stopReports := context.WithCancel(ctx)
	defer stopReports()
	if cfg.Audit.Async {
		auditLog.SetAsync(true)
		go auditLog.ReportErrors(reportCtx, logger)
	}

	apiServer := api.NewServer(api.Config{
		Store:         store,
		Directory:     dir,
		Authenticator: middleware.NewAuthenticator(verifier, resolver, true),
		Routes:        routes,
		Login:         login,
		Health:        health,
		Registry:      registry,
		Metrics:       metrics,
		Logger:        logger,
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		AuditStore:    trail,
		Audit:         auditLog,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(apiServer, "labkit"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("routes", func(context.Context) error { return routes.Close() })
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error {
		auditLog.Flush()
		stopReports()
		return auditLog.Close()
	})
	shutdown.RegisterShutdownFunc("store", func(context.Context) error { return store.Close() })
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":  httpServer.Addr,
			"store": cfg.Store.Type,
		}).Info("Starting labkit server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-errCh; ok && err != nil {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(waitCtx)
}

// openStore opens the configured backend and wraps it with metrics and,
// when enabled, the read cache. Backends are registered for readiness.
func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, health *observability.HealthChecker, logger *observability.Logger) (docstore.Store, error) {
	backend, err := cfg.Store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	if cfg.Store.Type == config.StoreMemory {
		logger.Warn("Using the in-memory document store; data is lost on restart")
	}
	health.Register("docstore", backend, true)

	store := docstore.Instrument(backend, cfg.Store.Type, metrics)
	if !cfg.Cache.Enabled {
		return store, nil
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		client, err := docstore.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		health.Register("redis", observability.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}), false)
		redisClient = client
	}
	return docstore.NewCachedStore(store, redisClient, cfg.Cache.Docstore(), metrics, logger), nil
}

// newVerifier picks OIDC when an issuer is configured and HS256 JWTs
// otherwise. Only OIDC supports the browser login flow.
func newVerifier(ctx context.Context, cfg config.IdentityConfig) (identity.TokenVerifier, api.LoginFlow, error) {
	if cfg.UsesOIDC() {
		v, err := identity.NewOIDCVerifier(ctx, identity.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return v, v, nil
	}

	v, err := identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return nil, nil, err
	}
	return v, nil, nil
}
