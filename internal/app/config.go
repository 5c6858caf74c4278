package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Events sinks accepted by EVENTS_SINK.
const (
	EventsSinkNone  = "none"
	EventsSinkRedis = "redis"
	EventsSinkKafka = "kafka"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	JobsEnabled        bool   `envconfig:"JOBS_ENABLED" default:"true"`
	LedgerRebuildCron  string `envconfig:"LEDGER_REBUILD_CRON" default:"*/15 * * * *"`
	StatementExportDir string `envconfig:"STATEMENT_EXPORT_DIR" default:"./var/statements"`

	EventsSink   string   `envconfig:"EVENTS_SINK" default:"redis"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"127.0.0.1:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"billing.ledger.rebuilt"`

	SeedDemoData bool `envconfig:"SEED_DEMO_DATA" default:"true"`
}

// LoadConfig reads configuration from environment variables. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.EventsSink = strings.ToLower(strings.TrimSpace(cfg.EventsSink))
	if cfg.EventsSink == "" {
		cfg.EventsSink = EventsSinkNone
	}
	switch cfg.EventsSink {
	case EventsSinkNone, EventsSinkRedis:
	case EventsSinkKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("kafka events sink requires KAFKA_BROKERS")
		}
	default:
		return nil, fmt.Errorf("unknown EVENTS_SINK %q", cfg.EventsSink)
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// NeedsRedis reports whether any enabled component talks to redis.
func (c *Config) NeedsRedis() bool {
	return c != nil && (c.JobsEnabled || c.EventsSink == EventsSinkRedis)
}
