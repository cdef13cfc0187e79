package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior;
// request handlers never read process-wide state directly.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// PublicBaseURL is the externally reachable base URL of the service,
	// used to build the status URL embedded in purchase receipts.
	PublicBaseURL string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// InstaXchange webhook configuration. An empty WebhookSecret disables
	// signature verification; that is only permitted when
	// AllowUnsignedWebhooks is set explicitly (trusted/test environments).
	WebhookSecret         string
	AllowUnsignedWebhooks bool

	// SMTP configuration for the confirmation email worker.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is missing
// or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.PublicBaseURL = getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Webhook verification configuration
	cfg.WebhookSecret = os.Getenv("INSTAXCHANGE_WEBHOOK_SECRET")
	allowUnsigned, err := parseBool("ALLOW_UNSIGNED_WEBHOOKS", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.AllowUnsignedWebhooks = allowUnsigned
	if cfg.WebhookSecret == "" && !cfg.AllowUnsignedWebhooks {
		errs = append(errs, fmt.Errorf("INSTAXCHANGE_WEBHOOK_SECRET is required unless ALLOW_UNSIGNED_WEBHOOKS=true"))
	}

	// SMTP configuration (validated separately by the worker via ValidateSMTP)
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	smtpPort, err := parseInt("SMTP_PORT", 587)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SMTPPort = smtpPort
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM_EMAIL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.WebhookSecret == "" && !c.AllowUnsignedWebhooks {
		errs = append(errs, fmt.Errorf("WebhookSecret is required unless AllowUnsignedWebhooks is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ValidateSMTP checks the fields the email worker needs. The API server does
// not send mail, so these are not part of Validate.
func (c *Config) ValidateSMTP() error {
	var errs []error

	if c.SMTPHost == "" {
		errs = append(errs, fmt.Errorf("SMTP_HOST is required"))
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.SMTPPort))
	}
	if c.SMTPFrom == "" {
		errs = append(errs, fmt.Errorf("SMTP_FROM_EMAIL is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("SMTP configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
