package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port          int
	JWTSecret     string
	DatabaseURL   string
	EncryptionKey string
	CORSOrigins   []string
	AdminEmail    string
	AdminPassword string
	AutoMigrate   bool

	LogLevel  string
	LogFormat string

	PaymentGateway      string
	CashfreeAppID       string
	CashfreeSecretKey   string
	CashfreeEnvironment string
	CashfreeAPIVersion  string
	GatewayTimeout      time.Duration
	PaymentReturnURL    string
	DefaultFreeTrial    int

	CapabilityURL     string
	CapabilityTimeout time.Duration

	RedisURL     string
	PlanCacheTTL time.Duration

	WebhookRetention     time.Duration
	WebhookPruneSchedule string
}

// InMemory reports whether DATABASE_URL selects the in-process store.
func (c *Config) InMemory() bool {
	return strings.HasPrefix(c.DatabaseURL, "memory://")
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("PORT", 4001)
	if err != nil {
		return nil, err
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required (must be exactly 32 bytes)")
	}
	if len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:3010"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	cfg := &Config{
		Port:          port,
		JWTSecret:     jwtSecret,
		DatabaseURL:   dbURL,
		EncryptionKey: encKey,
		CORSOrigins:   origins,
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@aiagenz.id"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		PaymentGateway:      strings.ToLower(getEnv("PAYMENT_GATEWAY", "cashfree")),
		CashfreeAppID:       getEnv("CASHFREE_APP_ID", ""),
		CashfreeSecretKey:   getEnv("CASHFREE_SECRET_KEY", ""),
		CashfreeEnvironment: getEnv("CASHFREE_ENVIRONMENT", "sandbox"),
		CashfreeAPIVersion:  getEnv("CASHFREE_API_VERSION", "2025-01-01"),
		PaymentReturnURL:    getEnv("PAYMENT_RETURN_URL", "https://example.com/status?order_id={order_id}"),

		CapabilityURL: getEnv("CAPABILITY_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		WebhookPruneSchedule: getEnv("WEBHOOK_PRUNE_SCHEDULE", "0 3 * * *"),
	}

	if cfg.AutoMigrate, err = getEnvBool("AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.DefaultFreeTrial, err = getEnvInt("DEFAULT_FREE_TRIAL", 3); err != nil {
		return nil, err
	}
	if cfg.DefaultFreeTrial < 0 {
		return nil, fmt.Errorf("DEFAULT_FREE_TRIAL must not be negative")
	}
	if cfg.GatewayTimeout, err = getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CapabilityTimeout, err = getEnvDuration("CAPABILITY_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.PlanCacheTTL, err = getEnvDuration("PLAN_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WebhookRetention, err = getEnvDuration("WEBHOOK_RETENTION", 720*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.PaymentGateway {
	case "cashfree":
		if cfg.CashfreeAppID == "" || cfg.CashfreeSecretKey == "" {
			return nil, fmt.Errorf("CASHFREE_APP_ID and CASHFREE_SECRET_KEY are required when PAYMENT_GATEWAY=cashfree")
		}
		if cfg.CashfreeEnvironment != "sandbox" && cfg.CashfreeEnvironment != "production" {
			return nil, fmt.Errorf("CASHFREE_ENVIRONMENT must be sandbox or production, got %q", cfg.CashfreeEnvironment)
		}
	case "mock":
	default:
		return nil, fmt.Errorf("PAYMENT_GATEWAY must be cashfree or mock, got %q", cfg.PaymentGateway)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
