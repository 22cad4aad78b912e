package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	PGDSN string `envconfig:"PG_DSN" required:"true"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	KitRulesPath         string        `envconfig:"KIT_RULES_PATH" default:"config/kits.yaml"`
	SelectionTTL         time.Duration `envconfig:"SELECTION_TTL" default:"2h"`
	IdempotencyRetention time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"72h"`
	RateLimitPerMinute   int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	MaxImportBytes       int64         `envconfig:"MAX_IMPORT_BYTES" default:"10485760"`

	// GotenbergURL enables PDF exports of the informe matrix when set.
	GotenbergURL string `envconfig:"GOTENBERG_URL"`

	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.PGDSN == "" {
		return nil, errors.New("postgres dsn must be provided")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, errors.New("rate limit must be positive")
	}
	if cfg.SelectionTTL <= 0 {
		return nil, errors.New("selection ttl must be positive")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
