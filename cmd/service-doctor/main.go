package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"

	"payment-lifecycle-engine/internal/adapters/analytics/clickhouse"
	"payment-lifecycle-engine/internal/adapters/messaging/kafka"
	"payment-lifecycle-engine/internal/adapters/storage/redis"
	"payment-lifecycle-engine/internal/config"
	"payment-lifecycle-engine/internal/observability"
)

// Check describes one diagnostic check
type Check struct {
	Name     string
	Func     func(ctx context.Context) error
	Skip     bool
	Error    error
	Duration time.Duration
}

func main() {
	logger := observability.SetupLogger("development", "warn")
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "localhost" + cfg.Server.Port
	}

	checks := []Check{
		{Name: "Payment Gateway", Func: func(ctx context.Context) error {
			return checkHTTPHealth(ctx, gatewayURL+"/health", logger)
		}},
		{Name: "PostgreSQL", Func: func(ctx context.Context) error {
			return checkPostgres(ctx, cfg.Postgres.DSN, logger)
		}},
		{Name: "Redis", Func: func(ctx context.Context) error {
			rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			return rdb.Close()
		}},
		{Name: "Kafka Cluster", Skip: !cfg.Kafka.Enabled, Func: func(ctx context.Context) error {
			client, err := kafka.NewProducer(ctx, cfg.Brokers())
			if err != nil {
				return err
			}
			client.Close()
			return nil
		}},
		{Name: "ClickHouse", Skip: cfg.ClickHouse.Addr == "", Func: func(ctx context.Context) error {
			return checkClickHouse(ctx, cfg.ClickHouse)
		}},
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println("Running system diagnostics...")

	for i := range checks {
		if checks[i].Skip {
			continue
		}
		wg.Add(1)
		go func(c *Check) {
			defer wg.Done()
			start := time.Now()
			c.Error = c.Func(ctx)
			c.Duration = time.Since(start)
		}(&checks[i])
	}

	wg.Wait()

	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	failed := color.New(color.FgRed, color.Bold).SprintFunc()
	skipped := color.New(color.FgYellow).SprintFunc()

	fmt.Println("\n--- Diagnostics report ---")
	hasErrors := false
	for _, c := range checks {
		switch {
		case c.Skip:
			fmt.Printf("[%s] %-20s (not configured)\n", skipped("SKIP"), c.Name)
		case c.Error == nil:
			fmt.Printf("[%s] %-20s (took %v)\n", ok(" OK "), c.Name, c.Duration.Round(time.Millisecond))
		default:
			hasErrors = true
			fmt.Printf("[%s] %-20s (took %v) - error: %v\n", failed("FAIL"), c.Name, c.Duration.Round(time.Millisecond), c.Error)
		}
	}

	if hasErrors {
		color.Red("\nDiagnostics found problems.")
		os.Exit(1)
	}
	color.Green("\nAll systems operational.")
}

// --- Functions for checks ---

func checkHTTPHealth(ctx context.Context, url string, logger *slog.Logger) error {
	if !strings.HasPrefix(url, "http") {
		url = "http://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func checkPostgres(ctx context.Context, dsn string, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}

	defer func() {
		if err := conn.Close(ctx); err != nil {
			logger.Error("failed to close Postgres connection", "error", err)
		}
	}()
	return conn.Ping(ctx)
}

func checkClickHouse(ctx context.Context, cfg config.ClickHouseConfig) error {
	reports, err := clickhouse.Open(ctx, cfg.Addr, cfg.Database, cfg.User, cfg.Password)
	if err != nil {
		return err
	}
	return reports.Close()
}
