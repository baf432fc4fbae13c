package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-lifecycle-engine/internal/adapters/messaging/kafka"
	"payment-lifecycle-engine/internal/adapters/messaging/mock"
	"payment-lifecycle-engine/internal/adapters/storage/postgres"
	"payment-lifecycle-engine/internal/adapters/storage/redis"
	"payment-lifecycle-engine/internal/app"
	"payment-lifecycle-engine/internal/config"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/gateway"
	"payment-lifecycle-engine/internal/observability"
	"payment-lifecycle-engine/internal/tokenizer"
)

// payout-scheduler retries failed payouts whose backoff has elapsed and
// resolves records left in processing.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.App.Env, cfg.App.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("payout-scheduler starting", "env", cfg.App.Env, "poll_interval", cfg.Payout.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Jaeger.Endpoint, "payout-scheduler")
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("Failed to shutdown tracer", "error", err)
		}
	}()

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, postgres.PoolOptions{MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	locker := redis.NewLocker(rdb, "lock:")
	defer locker.Close()

	var publisher ports.EventPublisher = mock.NewBroker(logger)
	if cfg.Kafka.Enabled {
		broker, err := kafka.NewBroker(ctx, cfg.Brokers(), cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Error("Failed to create Kafka broker", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		publisher = broker
	}

	tok, err := tokenizer.New([]byte(cfg.Tokenizer.Secret), tokenizer.WithTTL(cfg.Tokenizer.TTL))
	if err != nil {
		logger.Error("Failed to create tokenizer", "error", err)
		os.Exit(1)
	}
	sim := gateway.NewSimulator(cfg.Gateway.Seed, cfg.Gateway.DeclineRate, cfg.Gateway.Latency)

	deps := app.Deps{
		Store:     store,
		Gateway:   sim,
		Payouts:   sim,
		Publisher: publisher,
		Locker:    locker,
		Tokenizer: tok,
		Logger:    logger,
	}
	payouts := app.NewPayoutService(deps, app.PayoutOptions{
		MaxRetries:  cfg.Payout.MaxRetries,
		BatchSize:   cfg.Payout.BatchSize,
		Concurrency: cfg.Payout.Concurrency,
		LockTTL:     cfg.Payout.LockTTL,
		Timeout:     cfg.Gateway.Timeout,
	})
	reconciler := app.NewReconciler(deps, cfg.Payout.BatchSize)

	ticker := time.NewTicker(cfg.Payout.PollInterval)
	defer ticker.Stop()
	for {
		tick(ctx, logger, payouts, reconciler, cfg.Reconcile.StaleAfter)
		select {
		case <-ctx.Done():
			logger.Info("payout-scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func tick(ctx context.Context, logger *slog.Logger, payouts ports.PayoutService, reconciler *app.Reconciler, staleAfter time.Duration) {
	if _, err := reconciler.ResolveStale(ctx, staleAfter); err != nil {
		logger.Error("reconcile pass failed", "error", err)
	}

	n, err := payouts.RetryDue(ctx)
	if err != nil {
		logger.Error("payout retry pass failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("retried due payouts", "count", n)
	}
}
