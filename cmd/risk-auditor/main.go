package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-lifecycle-engine/internal/adapters/analytics/clickhouse"
	"payment-lifecycle-engine/internal/adapters/messaging/kafka"
	"payment-lifecycle-engine/internal/config"
	"payment-lifecycle-engine/internal/observability"
)

// risk-auditor copies the risk assessment of every finished transaction from
// the lifecycle topic into ClickHouse.
func main() {
	// --- Configuration Setup ---
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		observability.SetupLogger("production", "").Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.App.Env, cfg.App.LogLevel)
	logger.Info("risk auditor starting", "env", cfg.App.Env, "topic", cfg.Kafka.Topic)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Component Initialization ---
	dlqProducer, err := kafka.NewProducer(ctx, cfg.Brokers())
	if err != nil {
		logger.Error("failed to create Kafka producer for DLQ", "error", err)
		os.Exit(1)
	}
	defer dlqProducer.Close()

	reports, err := clickhouse.Open(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password)
	if err != nil {
		logger.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := reports.Close(); err != nil {
			logger.Error("Failed to close ClickHouse connection", "error", err)
		}
	}()
	if err := reports.EnsureSchema(ctx); err != nil {
		logger.Error("failed to create risk_reports table", "error", err)
		os.Exit(1)
	}

	consumer, err := kafka.NewConsumer(cfg.Brokers(), cfg.Kafka.Group, cfg.Kafka.Topic)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	logger.Info("risk auditor is ready")

	// --- Main processing loop ---
	for {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}
		fetches.EachError(func(t string, p int32, err error) {
			logger.Error("error reading from kafka", "topic", t, "partition", p, "error", err)
		})

		b := collect(fetches.Records(), cfg.Kafka.DLQTopic, time.Now())
		if len(b.dlq) > 0 {
			logger.Warn("sending records to DLQ", "count", len(b.dlq), "topic", cfg.Kafka.DLQTopic)
			if err := dlqProducer.ProduceSync(ctx, b.dlq...).FirstErr(); err != nil {
				logger.Error("failed to write to DLQ", "error", err)
				continue
			}
		}
		if len(b.reports) > 0 {
			if err := reports.Write(ctx, b.reports); err != nil {
				logger.Error("failed to write risk reports", "error", err, "count", len(b.reports))
				continue
			}
			logger.Info("risk reports stored", "count", len(b.reports), "skipped", b.skipped)
		}

		if err := consumer.CommitUncommittedOffsets(ctx); err != nil {
			logger.Error("error committing offsets", "error", err)
		}
	}

	logger.Info("risk auditor stopping")
}
