package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/minierp-console/api/controllers"
	"github.com/angelmondragon/minierp-console/api/middleware"
	"github.com/angelmondragon/minierp-console/api/routes"
	"github.com/angelmondragon/minierp-console/internal/console"
	"github.com/angelmondragon/minierp-console/internal/cron"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/state"
	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
	pkgredis "github.com/angelmondragon/minierp-console/pkg/redis"
	"github.com/angelmondragon/minierp-console/pkg/security"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := state.Open(ctx, cfg.State, cfg.DB, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to open state storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logg.Error(context.Background(), "error closing state storage", err)
		}
	}()

	var sealer *security.Sealer
	if cfg.State.SealKey != "" {
		sealer, err = security.NewSealer(cfg.State.SealKey)
		if err != nil {
			logg.Error(ctx, "failed to build token sealer", err)
			os.Exit(1)
		}
	} else if cfg.App.IsProd() {
		logg.Warn(ctx, "MINIERP_STATE_SEAL_KEY is empty, bearer tokens are stored in clear")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	erp, err := gateway.NewClient(
		gateway.WithBaseURL(cfg.Backend.BaseURL),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithMetrics(metrics.NewGatewayMetrics(registry)),
		gateway.WithLogger(logg),
	)
	if err != nil {
		logg.Error(ctx, "failed to build backend client", err)
		os.Exit(1)
	}

	consoles, err := console.NewRegistry(console.Deps{
		State:        backend.KV,
		Backend:      erp,
		Sealer:       sealer,
		OrderMetrics: metrics.NewOrderMetrics(registry),
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build console registry", err)
		os.Exit(1)
	}

	if err := startMaintenance(ctx, cfg, logg, backend, consoles, metrics.NewJobMetrics(registry)); err != nil {
		logg.Error(ctx, "failed to start maintenance jobs", err)
		os.Exit(1)
	}

	readiness := map[string]controllers.Pinger{}
	for name, p := range backend.Pingers() {
		readiness[name] = p
	}

	// Keep the interfaces nil rather than wrapping a nil client.
	var (
		rateStore        middleware.RateLimitStore
		idempotencyStore pkgredis.IdempotencyStore
	)
	if backend.Redis != nil {
		rateStore = backend.Redis
		idempotencyStore = backend.Redis
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"backend_url": erp.BaseURL(),
	})
	logg.Info(logCtx, "starting console api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, consoles, readiness, rateStore, idempotencyStore, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}

// startMaintenance runs the state purge under a lock shared by every replica
// when Redis is available, and console eviction locally in each process.
func startMaintenance(ctx context.Context, cfg *config.Config, logg *logger.Logger, backend *state.Backend, consoles *console.Registry, jobMetrics *metrics.JobMetrics) error {
	var purgeLock cron.Lock = &cron.LocalLock{}
	if backend.Redis != nil {
		lock, err := cron.NewRedisLock(backend.Redis, backend.Redis.LockKey("maintenance", cfg.App.Env), cfg.Jobs.PurgeInterval)
		if err != nil {
			return err
		}
		purgeLock = lock
	}

	purge, err := cron.NewService(cron.ServiceParams{
		Name:     "state_purge",
		Logger:   logg,
		Registry: cron.NewRegistry(cron.NewStatePurgeJob(backend, logg)),
		Lock:     purgeLock,
		Metrics:  jobMetrics,
		Interval: cfg.Jobs.PurgeInterval,
	})
	if err != nil {
		return err
	}
	evict, err := cron.NewService(cron.ServiceParams{
		Name:     "console_evict",
		Logger:   logg,
		Registry: cron.NewRegistry(cron.NewConsoleEvictJob(consoles, cfg.Jobs.ConsoleIdle, logg)),
		Lock:     &cron.LocalLock{},
		Metrics:  jobMetrics,
		Interval: cfg.Jobs.EvictInterval,
	})
	if err != nil {
		return err
	}

	go func() { _ = purge.Run(ctx) }()
	go func() { _ = evict.Run(ctx) }()
	return nil
}
