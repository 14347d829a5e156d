package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/auth"
	"github.com/eugener/aigateway/internal/clock"
	"github.com/eugener/aigateway/internal/config"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/dispatch"
	"github.com/eugener/aigateway/internal/login"
	"github.com/eugener/aigateway/internal/provider"
	"github.com/eugener/aigateway/internal/provider/anthropic"
	"github.com/eugener/aigateway/internal/provider/openai"
	"github.com/eugener/aigateway/internal/provider/zhipu"
	"github.com/eugener/aigateway/internal/ratelimit"
	"github.com/eugener/aigateway/internal/router"
	"github.com/eugener/aigateway/internal/server"
	"github.com/eugener/aigateway/internal/storage"
	"github.com/eugener/aigateway/internal/storage/postgres"
	"github.com/eugener/aigateway/internal/storage/sqlite"
	"github.com/eugener/aigateway/internal/telemetry"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting gateway", "version", version, "addr", cfg.Server.Addr, "storage", cfg.Storage.Backend)

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	readyCheck := func(context.Context) error { return nil }
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		readyCheck = pinger.Ping
	}

	// Shared DNS cache for all provider HTTP clients.
	dnsResolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			dnsResolver.Refresh(true)
		}
	}()

	reg := provider.NewRegistry()
	for _, p := range cfg.Providers {
		if !p.IsEnabled() {
			slog.Info("provider skipped (disabled)", "name", p.Name)
			continue
		}

		var client gateway.ProviderClient
		switch p.Type {
		case "openai":
			client = openai.New(p.Name, p.BaseURL, dnsResolver)
		case "anthropic":
			client = anthropic.New(p.Name, p.BaseURL, dnsResolver)
		case "zhipu":
			client = zhipu.New(p.Name, p.BaseURL, dnsResolver)
		default:
			slog.Warn("unknown provider type, skipping", "name", p.Name, "type", p.Type)
			continue
		}
		reg.Register(p.Name, client)
		slog.Info("provider registered", "name", p.Name, "type", p.Type, "weight", p.Weight)
	}

	realClock := clock.Real()

	jwtIssuer := crypto.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	if jwtIssuer.Enabled() {
		slog.Info("jwt auth enabled", "ttl", cfg.Auth.JWTTTL)
	} else {
		slog.Info("jwt auth disabled (no jwt_secret configured)")
	}

	authResolver, err := auth.New(store, store, store, realClock, jwtIssuer)
	if err != nil {
		return fmt.Errorf("auth resolver: %w", err)
	}
	userAuth := auth.NewUserAuth(store, store, store, jwtIssuer, realClock)
	loginMgr := login.New(store, realClock)

	resolver := router.New(store)
	rotator := provider.NewKeyRotator()
	keyLogStrategy := resolveKeyLogStrategy(cfg.Providers)
	disp := dispatch.New(store, reg, resolver, rotator, realClock, keyLogStrategy)

	rateLimiter := ratelimit.NewRegistry()
	slog.Info("rate limits configured", "default_rpm", cfg.RateLimits.DefaultRPM, "default_tpm", cfg.RateLimits.DefaultTPM)

	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promRegistry.MustRegister(collectors.NewGoCollector())
		metrics = telemetry.NewMetrics(promRegistry)
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
		slog.Info("prometheus metrics enabled")
	}

	handler := server.New(server.Deps{
		Auth:           authResolver,
		AuthResolver:   authResolver,
		UserAuth:       userAuth,
		Login:          loginMgr,
		Dispatch:       disp,
		Store:          store,
		Providers:      reg,
		Clock:          realClock,
		KeyLogStrategy: keyLogStrategy,
		RateLimiter:    rateLimiter,
		DefaultRPM:     cfg.RateLimits.DefaultRPM,
		DefaultTPM:     cfg.RateLimits.DefaultTPM,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		ReadyCheck:     readyCheck,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	evictCtx, evictCancel := context.WithCancel(context.Background())
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-evictCtx.Done():
				return
			case <-t.C:
				if n := rateLimiter.EvictStale(time.Now().Add(-time.Hour)); n > 0 {
					slog.Info("rate limiter eviction", "evicted", n)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("gateway ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		evictCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	evictCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("gateway stopped")
	return nil
}

// openStore constructs the configured storage backend. "sqlite" runs
// embedded and single-process; "postgres" pools connections for
// multi-process deployments (spec.md section 5).
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:                 cfg.DSN,
			PoolSize:            cfg.PoolSize,
			KeepaliveJitterBase: cfg.KeepaliveJitterBase,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// resolveKeyLogStrategy picks the gateway-wide key logging strategy from the
// configured providers. Providers may request different strategies in
// configs/gateway.yaml; the first explicit one wins and the rest are
// expected to agree, since dispatch applies one strategy process-wide.
func resolveKeyLogStrategy(providers []config.ProviderEntry) gateway.KeyLogStrategy {
	for _, p := range providers {
		switch gateway.KeyLogStrategy(p.KeyLogStrategy) {
		case gateway.KeyLogNone, gateway.KeyLogMasked, gateway.KeyLogPlain:
			return gateway.KeyLogStrategy(p.KeyLogStrategy)
		}
	}
	return gateway.KeyLogMasked
}
