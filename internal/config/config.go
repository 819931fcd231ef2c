// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type AdminConfig struct {
	UserIDs []string `yaml:"user_ids" env:"ADMIN_USER_IDS" envSeparator:","`
}

type DatabaseConfig struct {
	URL            string `yaml:"url" env:"DATABASE_URL"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type PaymentConfig struct {
	Currency string `yaml:"currency"`
	Stripe   struct {
		SecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
		WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
		SuccessURL    string `yaml:"success_url" env:"STRIPE_SUCCESS_URL"`
		CancelURL     string `yaml:"cancel_url" env:"STRIPE_CANCEL_URL"`

		// APIURL overrides the Stripe API base (stripe-mock or tests).
		APIURL string `yaml:"api_url" env:"STRIPE_API_URL"`
	} `yaml:"stripe"`
}

type EmailConfig struct {
	From     string `yaml:"from" env:"EMAIL_FROM"`
	ReplyTo  string `yaml:"reply_to"`
	Postmark struct {
		ServerToken  string `yaml:"server_token" env:"POSTMARK_SERVER_TOKEN"`
		AccountToken string `yaml:"account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
	} `yaml:"postmark"`
}

type RenewalConfig struct {
	Window         time.Duration `yaml:"window"`
	MaxFailures    int           `yaml:"max_failures"`
	FailureWindow  time.Duration `yaml:"failure_window"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	ReconcileAfter time.Duration `yaml:"reconcile_after"`

	// AllowTestHeader honours x-test-renewal on POST /api/subscription/renewal.
	AllowTestHeader bool `yaml:"allow_test_header" env:"RENEWAL_ALLOW_TEST_HEADER"`
}

type StatusConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	OnlineWindow  time.Duration `yaml:"online_window"`
	RefreshSample float64       `yaml:"refresh_sample"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type SchedulerConfig struct {
	ExpiryCheckInterval time.Duration `yaml:"expiry_check_interval"`
	ExpiryThresholdDays []int         `yaml:"expiry_threshold_days"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Payment   PaymentConfig   `yaml:"payment"`
	Email     EmailConfig     `yaml:"email"`
	Renewal   RenewalConfig   `yaml:"renewal"`
	Status    StatusConfig    `yaml:"status"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads -config and -dev from the command line and calls Load.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads the yaml file, then overlays environment variables (a .env file is
// honoured when present). A missing yaml file is allowed; env alone may configure the app.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	c.Server.ReadTimeout = orDuration(c.Server.ReadTimeout, 10*time.Second)
	c.Server.WriteTimeout = orDuration(c.Server.WriteTimeout, 15*time.Second)
	c.Server.ShutdownTimeout = orDuration(c.Server.ShutdownTimeout, 10*time.Second)
	if c.Server.RateLimitPerMin <= 0 {
		c.Server.RateLimitPerMin = 120
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = orDuration(c.Redis.TTL, time.Hour)
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "collab-billing"
	}
	c.Auth.TokenTTL = orDuration(c.Auth.TokenTTL, 24*time.Hour)
	if c.Payment.Currency == "" {
		c.Payment.Currency = "usd"
	}

	c.Renewal.Window = orDuration(c.Renewal.Window, 7*24*time.Hour)
	if c.Renewal.MaxFailures <= 0 {
		c.Renewal.MaxFailures = 3
	}
	c.Renewal.FailureWindow = orDuration(c.Renewal.FailureWindow, 24*time.Hour)
	c.Renewal.ScanInterval = orDuration(c.Renewal.ScanInterval, time.Hour)
	if c.Renewal.BatchSize <= 0 {
		c.Renewal.BatchSize = 100
	}
	if c.Renewal.Workers <= 0 {
		c.Renewal.Workers = 4
	}
	c.Renewal.ReconcileAfter = orDuration(c.Renewal.ReconcileAfter, 15*time.Minute)

	c.Status.CacheTTL = orDuration(c.Status.CacheTTL, 30*time.Second)
	c.Status.OnlineWindow = orDuration(c.Status.OnlineWindow, 15*time.Minute)
	if c.Status.RefreshSample <= 0 {
		c.Status.RefreshSample = 0.1
	}

	c.Outbox.PollInterval = orDuration(c.Outbox.PollInterval, 5*time.Second)
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 20
	}

	c.Scheduler.ExpiryCheckInterval = orDuration(c.Scheduler.ExpiryCheckInterval, 6*time.Hour)
	if len(c.Scheduler.ExpiryThresholdDays) == 0 {
		c.Scheduler.ExpiryThresholdDays = []int{7, 3, 1}
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Status.RefreshSample > 1 {
		return errors.New("status.refresh_sample must be within (0,1]")
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
