package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// Environment names recognised by Config.Env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config represents the complete application configuration. It is built
// once at startup and passed into constructors; business logic never
// reads the environment directly.
type Config struct {
	Env       string          `yaml:"env" envconfig:"ENV" default:"production" validate:"oneof=development production"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Payments  PaymentsConfig  `yaml:"payments" envconfig:"PAYMENTS"`
	Webhook   WebhookConfig   `yaml:"webhook" envconfig:"WEBHOOK"`
	Download  DownloadConfig  `yaml:"download" envconfig:"DOWNLOAD"`
	Plugin    PluginConfig    `yaml:"plugin" envconfig:"PLUGIN"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	PublicURL       string        `yaml:"public_url" envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// PaymentsConfig contains the payments-provider API configuration.
// APIKey is the bearer credential for the license endpoints.
type PaymentsConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"10s"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" envconfig:"RETRY_BACKOFF" default:"500ms"`
	OutboundRPS    float64       `yaml:"outbound_rps" envconfig:"OUTBOUND_RPS" default:"50"`
	OutboundBurst  int           `yaml:"outbound_burst" envconfig:"OUTBOUND_BURST" default:"20"`
}

// WebhookConfig contains inbound webhook verification settings.
type WebhookConfig struct {
	Secret string `yaml:"secret" envconfig:"SECRET"`
}

// DownloadConfig contains signed download-token settings.
type DownloadConfig struct {
	TokenSecret string        `yaml:"token_secret" envconfig:"TOKEN_SECRET"`
	TokenTTL    time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL" default:"15m"`
}

// PluginConfig describes the latest published plugin release, served
// by the update-check endpoint. PackageURL is the real artifact
// location; clients only ever see a signed download link.
type PluginConfig struct {
	Slug          string `yaml:"slug" envconfig:"SLUG" default:"authorkit"`
	LatestVersion string `yaml:"latest_version" envconfig:"LATEST_VERSION" default:"0.0.0"`
	PackageURL    string `yaml:"package_url" envconfig:"PACKAGE_URL"`
	ChangelogURL  string `yaml:"changelog_url" envconfig:"CHANGELOG_URL"`
	RequiresWP    string `yaml:"requires_wp" envconfig:"REQUIRES_WP" default:"6.0"`
	TestedUpTo    string `yaml:"tested_up_to" envconfig:"TESTED_UP_TO" default:"6.6"`
}

// DatabaseConfig contains the bookshelf database connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"5m"`
}

// RateLimitConfig selects and tunes the rate-limit store.
// Backend is "memory" (single instance) or "redis" (shared).
type RateLimitConfig struct {
	Backend        string        `yaml:"backend" envconfig:"BACKEND" default:"memory" validate:"oneof=memory redis"`
	RedisAddr      string        `yaml:"redis_addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `yaml:"redis_db" envconfig:"REDIS_DB" default:"0"`
	SweepHighWater int           `yaml:"sweep_high_water" envconfig:"SWEEP_HIGH_WATER" default:"10000"`
	LicenseMax     int           `yaml:"license_max" envconfig:"LICENSE_MAX" default:"10"`
	LicenseWindow  time.Duration `yaml:"license_window" envconfig:"LICENSE_WINDOW" default:"1m"`
	WriteMax       int           `yaml:"write_max" envconfig:"WRITE_MAX" default:"30"`
	WriteWindow    time.Duration `yaml:"write_window" envconfig:"WRITE_WINDOW" default:"1m"`
	ListMax        int           `yaml:"list_max" envconfig:"LIST_MAX" default:"60"`
	ListWindow     time.Duration `yaml:"list_window" envconfig:"LIST_WINDOW" default:"1m"`
	EmailMax       int           `yaml:"email_max" envconfig:"EMAIL_MAX" default:"5"`
	EmailWindow    time.Duration `yaml:"email_window" envconfig:"EMAIL_WINDOW" default:"1m"`
}

// SecurityConfig contains CORS and header settings.
type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"console"`
}

// Load loads configuration from environment variables and, when
// AUTHORKIT_CONFIG_FILE points at a YAML file, merges that file in
// underneath the environment (env wins).
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("AUTHORKIT_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("AUTHORKIT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required settings are present and coherent.
func (c *Config) Validate() error {
	c.RateLimit.Backend = strings.ToLower(c.RateLimit.Backend)

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Secrets are required in production. Development tolerates their
	// absence so the bookshelf endpoints can run standalone.
	if c.IsProduction() {
		if c.Payments.APIKey == "" {
			return fmt.Errorf("payments API key is required in production")
		}
		if c.Webhook.Secret == "" {
			return fmt.Errorf("webhook secret is required in production")
		}
		if c.Download.TokenSecret == "" {
			return fmt.Errorf("download token secret is required in production")
		}
	}

	return nil
}

// IsDevelopment reports whether the relaxed development mode is active.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction reports whether the strict production mode is active.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}
