package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Apply modes for verified webhook events.
const (
	ApplyModeQueue = "queue"
	ApplyModeSync  = "sync"
)

// Config holds all configuration for the application.
type Config struct {
	Port                             string `mapstructure:"PORT"`
	GinMode                          string `mapstructure:"GIN_MODE"`
	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	StripeSecretKey                  string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret              string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	ClientURL                        string `mapstructure:"CLIENT_URL"`
	CatalogPath                      string `mapstructure:"CATALOG_PATH"`

	// Optional infrastructure. Empty addresses select the in-process implementations.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RabbitMQURL   string `mapstructure:"RABBITMQ_URL"`

	WebhookQueueName      string        `mapstructure:"WEBHOOK_QUEUE_NAME"`
	WebhookApplyMode      string        `mapstructure:"WEBHOOK_APPLY_MODE"`
	WebhookMaxAttempts    int           `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	WebhookInitialBackoff time.Duration `mapstructure:"WEBHOOK_INITIAL_BACKOFF"`
	WebhookMaxBackoff     time.Duration `mapstructure:"WEBHOOK_MAX_BACKOFF"`
	WebhookDedupTTL       time.Duration `mapstructure:"WEBHOOK_DEDUP_TTL"`

	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      string `mapstructure:"SMTP_PORT"`
	SMTPUsername  string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword  string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom      string `mapstructure:"SMTP_FROM"`
	OpsAlertEmail string `mapstructure:"OPS_ALERT_EMAIL"`
}

var appConfig *Config

var envKeys = []string{
	"PORT", "GIN_MODE",
	"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "CLIENT_URL", "CATALOG_PATH",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RABBITMQ_URL",
	"WEBHOOK_QUEUE_NAME", "WEBHOOK_APPLY_MODE", "WEBHOOK_MAX_ATTEMPTS",
	"WEBHOOK_INITIAL_BACKOFF", "WEBHOOK_MAX_BACKOFF", "WEBHOOK_DEDUP_TTL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "OPS_ALERT_EMAIL",
}

// LoadConfig loads configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("WEBHOOK_QUEUE_NAME", "stripe-webhook-events")
	v.SetDefault("WEBHOOK_APPLY_MODE", ApplyModeQueue)
	v.SetDefault("WEBHOOK_MAX_ATTEMPTS", 5)
	v.SetDefault("WEBHOOK_INITIAL_BACKOFF", "500ms")
	v.SetDefault("WEBHOOK_MAX_BACKOFF", "30s")
	v.SetDefault("WEBHOOK_DEDUP_TTL", "24h")
	v.SetDefault("SMTP_PORT", "2525")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return appConfig, nil
}

// Validate checks the required fields and the webhook settings.
func (cfg *Config) Validate() error {
	if cfg.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	if cfg.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.ClientURL == "" {
		return errors.New("CLIENT_URL is required")
	}
	// STRIPE_WEBHOOK_SECRET is checked per request so that a missing secret surfaces as a 500 on the webhook only.

	cfg.WebhookApplyMode = strings.ToLower(cfg.WebhookApplyMode)
	if cfg.WebhookApplyMode != ApplyModeQueue && cfg.WebhookApplyMode != ApplyModeSync {
		return errors.New("WEBHOOK_APPLY_MODE must be 'queue' or 'sync'")
	}
	if cfg.WebhookMaxAttempts < 1 {
		return errors.New("WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.WebhookInitialBackoff <= 0 || cfg.WebhookMaxBackoff < cfg.WebhookInitialBackoff {
		return errors.New("WEBHOOK_INITIAL_BACKOFF must be positive and not exceed WEBHOOK_MAX_BACKOFF")
	}
	return nil
}

// IsRelease reports whether gin runs in release mode.
func (cfg *Config) IsRelease() bool {
	return strings.EqualFold(cfg.GinMode, "release")
}

// AlertsEnabled reports whether operator alert e-mails can be sent.
func (cfg *Config) AlertsEnabled() bool {
	return cfg.SMTPHost != "" && cfg.SMTPFrom != "" && cfg.OpsAlertEmail != ""
}

// GetConfig returns the loaded application configuration.
// It will panic if LoadConfig has not been called successfully.
func GetConfig() *Config {
	if appConfig == nil {
		panic("config not loaded; call LoadConfig first")
	}
	return appConfig
}
