package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClickHouseConfig locates the risk report store.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Config struct {
	App struct {
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`
	Server struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		RateLimit    int           `yaml:"rate_limit"` // requests per RateWindow per client
		RateWindow   time.Duration `yaml:"rate_window"`
	} `yaml:"server"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns"`
		MinConns        int32         `yaml:"min_conns"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
		Migrate         bool          `yaml:"migrate"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled          bool   `yaml:"enabled"`
		BootstrapServers string `yaml:"bootstrap_servers"`
		Topic            string `yaml:"topic"`
		DLQTopic         string `yaml:"dlq_topic"`
		Group            string `yaml:"group"`
	} `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
	Tokenizer struct {
		Secret string        `yaml:"secret"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"tokenizer"`
	Gateway struct {
		Seed        int64         `yaml:"seed"`
		DeclineRate float64       `yaml:"decline_rate"`
		Timeout     time.Duration `yaml:"timeout"`
		Latency     time.Duration `yaml:"latency"`
	} `yaml:"gateway"`
	Risk struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"risk"`
	Payout struct {
		MaxRetries   int           `yaml:"max_retries"`
		PollInterval time.Duration `yaml:"poll_interval"`
		BatchSize    int           `yaml:"batch_size"`
		Concurrency  int           `yaml:"concurrency"`
		LockTTL      time.Duration `yaml:"lock_ttl"`
	} `yaml:"payout"`
	Reconcile struct {
		StaleAfter time.Duration `yaml:"stale_after"`
	} `yaml:"reconcile"`
}

func Load(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(file)
}

// Parse decodes raw YAML, substituting environment variables first.
func Parse(raw []byte) (*Config, error) {
	config := &Config{}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if !strings.Contains(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = time.Minute
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "payment-events"
	}
	if c.Kafka.DLQTopic == "" {
		c.Kafka.DLQTopic = c.Kafka.Topic + "-dlq"
	}
	if c.Kafka.Group == "" {
		c.Kafka.Group = "risk-auditor"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "default"
	}
	if c.Tokenizer.TTL == 0 {
		c.Tokenizer.TTL = 24 * time.Hour
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 10 * time.Second
	}
	if c.Risk.Timezone == "" {
		c.Risk.Timezone = "UTC"
	}
	if c.Payout.MaxRetries == 0 {
		c.Payout.MaxRetries = 3
	}
	if c.Payout.PollInterval == 0 {
		c.Payout.PollInterval = 30 * time.Second
	}
	if c.Payout.BatchSize == 0 {
		c.Payout.BatchSize = 100
	}
	if c.Payout.Concurrency == 0 {
		c.Payout.Concurrency = 4
	}
	if c.Payout.LockTTL == 0 {
		c.Payout.LockTTL = 2 * time.Minute
	}
	if c.Reconcile.StaleAfter == 0 {
		c.Reconcile.StaleAfter = 15 * time.Minute
	}
}

// Validate checks the settings every binary relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if len(c.Tokenizer.Secret) < 32 {
		errs = append(errs, errors.New("tokenizer.secret must be at least 32 bytes"))
	}
	if c.Gateway.DeclineRate < 0 || c.Gateway.DeclineRate > 1 {
		errs = append(errs, fmt.Errorf("gateway.decline_rate %v is outside [0,1]", c.Gateway.DeclineRate))
	}
	if c.Payout.MaxRetries < 0 {
		errs = append(errs, errors.New("payout.max_retries must not be negative"))
	}
	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("risk.timezone: %w", err))
	}
	// A submission must finish its gateway call before its lock lapses or the
	// reconciler treats the record as stale.
	if c.Payout.LockTTL <= c.Gateway.Timeout {
		errs = append(errs, fmt.Errorf("payout.lock_ttl %s must exceed gateway.timeout %s", c.Payout.LockTTL, c.Gateway.Timeout))
	}
	if c.Reconcile.StaleAfter <= c.Gateway.Timeout {
		errs = append(errs, fmt.Errorf("reconcile.stale_after %s must exceed gateway.timeout %s", c.Reconcile.StaleAfter, c.Gateway.Timeout))
	}
	return errors.Join(errs...)
}

// Brokers splits the comma separated bootstrap list.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.Kafka.BootstrapServers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Location is the timezone used for the odd-hour risk factor.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Risk.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
