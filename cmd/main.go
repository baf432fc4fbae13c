package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandler "payment-lifecycle-engine/internal/adapters/http"
	"payment-lifecycle-engine/internal/adapters/messaging/kafka"
	"payment-lifecycle-engine/internal/adapters/messaging/mock"
	"payment-lifecycle-engine/internal/adapters/storage/postgres"
	"payment-lifecycle-engine/internal/adapters/storage/redis"
	"payment-lifecycle-engine/internal/antifraud"
	"payment-lifecycle-engine/internal/app"
	"payment-lifecycle-engine/internal/config"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/gateway"
	"payment-lifecycle-engine/internal/observability"
	"payment-lifecycle-engine/internal/tokenizer"
)

const serviceName = "payment-gateway"

func main() {
	// --- 1. Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env, cfg.App.LogLevel)
	logger.Info("Application starting", "env", cfg.App.Env, "port", cfg.Server.Port)

	// --- 2. Validate critical config ---
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		logger.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	// --- 3. Observability ---
	ctx := context.Background()
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Jaeger.Endpoint, serviceName)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("Failed to shutdown tracer", "error", err)
		}
	}()

	// --- 4. Dependencies ---
	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, postgres.PoolOptions{
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if cfg.Postgres.Migrate {
		if err := store.Migrate(ctx); err != nil {
			logger.Error("Failed to apply schema", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Connected to PostgreSQL")

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	locker := redis.NewLocker(rdb, "lock:")
	defer func() {
		if err := locker.Close(); err != nil {
			logger.Warn("Failed to close Redis", "error", err)
		}
	}()

	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled {
		broker, err := kafka.NewBroker(ctx, cfg.Brokers(), cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Error("Failed to create Kafka broker", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		publisher = broker
		logger.Info("Kafka broker created", "topic", cfg.Kafka.Topic)
	} else {
		broker := mock.NewBroker(logger)
		defer broker.Close()
		publisher = broker
		logger.Warn("Kafka disabled, lifecycle events are only logged")
	}

	tok, err := tokenizer.New([]byte(cfg.Tokenizer.Secret), tokenizer.WithTTL(cfg.Tokenizer.TTL))
	if err != nil {
		logger.Error("Failed to create tokenizer", "error", err)
		os.Exit(1)
	}
	sim := gateway.NewSimulator(cfg.Gateway.Seed, cfg.Gateway.DeclineRate, cfg.Gateway.Latency)

	// --- 5. Service Layer ---
	deps := app.Deps{
		Store:     store,
		Gateway:   sim,
		Payouts:   sim,
		Publisher: publisher,
		Locker:    locker,
		Tokenizer: tok,
		Scorer:    antifraud.NewScorer(cfg.Location()),
		Logger:    logger,
	}
	handler := httphandler.NewHandler(httphandler.Services{
		Transactions: app.NewTransactionService(deps, cfg.Gateway.Timeout),
		Refunds:      app.NewRefundService(deps, cfg.Gateway.Timeout),
		Payouts: app.NewPayoutService(deps, app.PayoutOptions{
			MaxRetries:  cfg.Payout.MaxRetries,
			BatchSize:   cfg.Payout.BatchSize,
			Concurrency: cfg.Payout.Concurrency,
			LockTTL:     cfg.Payout.LockTTL,
			Timeout:     cfg.Gateway.Timeout,
		}),
		Customers:    app.NewCustomerService(deps),
		BankAccounts: app.NewBankAccountService(deps),
	}, logger)

	// --- 6. HTTP Router ---
	r := chi.NewRouter()

	// Public middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		observability.NewLoggerMiddleware(logger),
		observability.NewMetricsMiddleware(serviceName),
		observability.NewTracingMiddleware(serviceName),
	)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := store.Ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": serviceName,
		}); err != nil {
			logger.Error("Failed to write health response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes: /api/v1/*
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			httphandler.JWTMiddleware([]byte(cfg.JWT.Secret), logger),
			httphandler.RateLimiterMiddleware(rdb, cfg.Server.RateLimit, cfg.Server.RateWindow, logger),
		)
		handler.Routes(r)
	})

	// --- 7. HTTP Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited properly")
}
