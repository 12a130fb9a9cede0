// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway
	WebhookSecret string // Shared secret for webhook HMAC verification (required)
	GatewayURL    string // Base URL of the gateway verify API (optional)
	GatewayAPIKey string
	GatewayVerify bool // Cross-check webhook claims against the gateway before settling

	// Marketplace policy
	Currency        string // Single ISO-4217 currency per deployment
	PlatformFeeBps  int64  // Platform fee taken on escrow release, in basis points
	EscrowGraceDays int    // Days after event start before escrow release date

	// Notifications
	NotifyURL    string // Notification collaborator endpoint (optional)
	NotifySecret string // HMAC secret for signing outbound notifications

	// Observability
	OTLPEndpoint string
	RateLimitRPS int
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultCurrency        = "USD"
	DefaultPlatformFeeBps  = 1000 // 10%
	DefaultEscrowGraceDays = 7
	DefaultRateLimit       = 100
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WebhookSecret:   os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:   os.Getenv("GATEWAY_API_KEY"),
		GatewayVerify:   getEnvBool("GATEWAY_VERIFY", false),
		Currency:        getEnv("CURRENCY", DefaultCurrency),
		PlatformFeeBps:  getEnvInt64("PLATFORM_FEE_BPS", DefaultPlatformFeeBps),
		EscrowGraceDays: int(getEnvInt64("ESCROW_GRACE_DAYS", DefaultEscrowGraceDays)),
		NotifyURL:       os.Getenv("NOTIFY_URL"),
		NotifySecret:    os.Getenv("NOTIFY_SECRET"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:    int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code, got %q", c.Currency)
	}
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be in [0, 10000], got %d", c.PlatformFeeBps)
	}
	if c.EscrowGraceDays < 0 {
		return fmt.Errorf("ESCROW_GRACE_DAYS must be >= 0, got %d", c.EscrowGraceDays)
	}
	if c.GatewayVerify && c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required when GATEWAY_VERIFY is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
