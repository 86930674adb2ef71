// Command schoold serves the school API.
//
// Configuration comes from the environment; see internal/config for the
// variables. The process exits on SIGINT or SIGTERM after draining
// in-flight requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/httpapi"
	"github.com/maxmusicschool/schoolauth/internal/config"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/internal/stores"
	otelexport "github.com/maxmusicschool/schoolauth/metrics/export/otel"
	promexport "github.com/maxmusicschool/schoolauth/metrics/export/prometheus"
	"github.com/maxmusicschool/schoolauth/middleware"
	"github.com/maxmusicschool/schoolauth/notify"
	"github.com/maxmusicschool/schoolauth/school"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// auditChannel is the Redis pub/sub channel of AUDIT_LOG=redis.
const auditChannel = "audit"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "schoold: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SecretsGenerated {
		logger.Warn(ctx, "JWT secrets not configured, using generated secrets; tokens will not survive a restart")
	}

	store, err := stores.Open(ctx, cfg, stores.Options{Migrate: true})
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DBAdapter, err)
	}
	defer store.Close()

	rdb, err := newRedisClient(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	metrics := schoolauth.NewMetrics(cfg.Auth.Metrics)
	transport := cache.NewRedisTransport(rdb, cache.RedisOptions{
		MaxAttempts:  cfg.Auth.Cache.MaxAttempts,
		RetryStep:    cfg.Auth.Cache.RetryStep,
		PingInterval: cfg.Auth.Cache.PingInterval,
		Logger:       logger,
	})
	caches := school.NewCaches(transport, school.CacheOptions{
		Observer:    metrics.CacheObserver(),
		Logger:      logger,
		IdentityTTL: cfg.CacheTTL,
	})

	authCfg := cfg.Auth
	sink := auditSink(cfg, rdb, logger)
	if sink == nil {
		authCfg.Audit.Enabled = false
	}

	engine, err := schoolauth.New().
		WithConfig(authCfg).
		WithRedis(rdb).
		WithCache(transport).
		WithDirectory(school.NewDirectory(store, caches)).
		WithAuditSink(sink).
		WithLogger(logger).
		WithMetrics(metrics).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = engine.Initialize(initCtx)
	cancel()
	if err != nil {
		return err
	}

	svc, err := school.NewService(school.Deps{
		Store:    store,
		Caches:   caches,
		Sessions: engine,
		Hasher:   engine,
		Bus:      notify.NewRedisBus(rdb, logger),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Instruments land on whatever MeterProvider the process installs
	// globally; without one they are no-ops.
	otelExp, err := otelexport.NewExporter(otel.Meter("github.com/maxmusicschool/schoolauth"), engine)
	if err != nil {
		return fmt.Errorf("otel exporter: %w", err)
	}
	defer otelExp.Close()

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Auth:    engine,
		School:  svc,
		Metrics: promexport.NewExporter(engine).Handler(),
		Checks: []httpapi.Check{
			{Name: "redis", Run: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
			{Name: "store", Run: svc.Ping},
		},
		TrustedProxies: trusted,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", srv.Addr, "env", cfg.Env, "store", cfg.DBAdapter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	return redis.NewClient(opts), nil
}

// auditSink returns nil when auditing is off.
func auditSink(cfg *config.Config, rdb redis.UniversalClient, logger schoolauth.Logger) schoolauth.AuditSink {
	var sinks []schoolauth.AuditSink
	for _, d := range cfg.AuditDestinations() {
		switch d {
		case config.AuditRedis:
			sinks = append(sinks, schoolauth.NewRedisSink(rdb, auditChannel, logger))
		case config.AuditStdout:
			sinks = append(sinks, schoolauth.NewJSONWriterSink(os.Stdout))
		case config.AuditLog:
			sinks = append(sinks, schoolauth.NewLogSink(logger))
		}
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return schoolauth.MultiSink(sinks...)
	}
}
