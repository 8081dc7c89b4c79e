package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env       string `env:"ENV"        envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"  validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:""      validate:"omitempty,oneof=text json"`

	PipelinesFile string `env:"PIPELINES_FILE" envDefault:"pipelines.yaml" validate:"required"`
	Timezone      string `env:"TIMEZONE"       envDefault:"UTC"            validate:"required"`

	TickIntervalMS  int `env:"TICK_INTERVAL_MS"  envDefault:"1000" validate:"min=10,max=60000"`
	WorkerCount     int `env:"WORKER_COUNT"      envDefault:"0"    validate:"min=0,max=1000"`
	DrainTimeoutSec int `env:"DRAIN_TIMEOUT_SEC" envDefault:"30"   validate:"min=0,max=3600"`

	RetryMaxAttempts int  `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"     validate:"min=1,max=100"`
	RetryMinDelayMS  int  `env:"RETRY_MIN_DELAY_MS" envDefault:"1000"  validate:"min=0"`
	RetryMaxDelayMS  int  `env:"RETRY_MAX_DELAY_MS" envDefault:"60000" validate:"min=0,gtefield=RetryMinDelayMS"`
	RetryJitter      bool `env:"RETRY_JITTER"       envDefault:"false"`

	Port        string `env:"PORT"         envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Run history goes to postgres when set, to memory otherwise.
	DatabaseURL       string `env:"DATABASE_URL"`
	HistorySize       int    `env:"HISTORY_SIZE"        envDefault:"1000" validate:"min=1"`
	RunRetentionHours int    `env:"RUN_RETENTION_HOURS" envDefault:"168"  validate:"min=0"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET" validate:"omitempty,min=32"`

	// Resend credentials are only needed when alerts are enabled.
	AlertEmailTo    string `env:"ALERT_EMAIL_TO"     validate:"omitempty,email"`
	AlertMaxPerHour int    `env:"ALERT_MAX_PER_HOUR" envDefault:"20" validate:"min=1"`
	ResendAPIKey    string `env:"RESEND_API_KEY"     validate:"required_with=AlertEmailTo"`
	ResendFrom      string `env:"RESEND_FROM"        validate:"required_with=AlertEmailTo"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JSONLogs reports whether logs should be emitted as JSON. Local runs default
// to colored text output.
func (c *Config) JSONLogs() bool {
	if c.LogFormat != "" {
		return c.LogFormat == "json"
	}
	return c.Env != "local"
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSec) * time.Second
}

func (c *Config) RunRetention() time.Duration {
	return time.Duration(c.RunRetentionHours) * time.Hour
}

// RetryPolicy is the default applied to pipelines without their own.
func (c *Config) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		MinDelay:    time.Duration(c.RetryMinDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMS) * time.Millisecond,
		Jitter:      c.RetryJitter,
	}
}
