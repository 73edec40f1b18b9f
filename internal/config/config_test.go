package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "memory://")
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("PAYMENT_GATEWAY", "mock")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4001, cfg.Port)
	assert.True(t, cfg.InMemory())
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 3, cfg.DefaultFreeTrial)
	assert.Equal(t, 15*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 60*time.Second, cfg.CapabilityTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PlanCacheTTL)
	assert.Equal(t, 720*time.Hour, cfg.WebhookRetention)
	assert.Equal(t, "0 3 * * *", cfg.WebhookPruneSchedule)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "mock", cfg.PaymentGateway)
}

func TestLoad_Required(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		want  string
	}{
		{"jwt secret", "JWT_SECRET", "JWT_SECRET is required"},
		{"database", "DATABASE_URL", "DATABASE_URL is required"},
		{"encryption key", "ENCRYPTION_KEY", "ENCRYPTION_KEY is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EncryptionKeyLength(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENCRYPTION_KEY", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly 32 bytes")
}

func TestLoad_CashfreeRequiresCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PAYMENT_GATEWAY", "cashfree")
	t.Setenv("CASHFREE_APP_ID", "")
	t.Setenv("CASHFREE_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CASHFREE_APP_ID", "app")
	t.Setenv("CASHFREE_SECRET_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sandbox", cfg.CashfreeEnvironment)
	assert.Equal(t, "2025-01-01", cfg.CashfreeAPIVersion)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "abc"},
		{"GATEWAY_TIMEOUT", "soon"},
		{"AUTO_MIGRATE", "maybe"},
		{"DEFAULT_FREE_TRIAL", "-1"},
		{"PAYMENT_GATEWAY", "paypal"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_InMemory(t *testing.T) {
	assert.True(t, (&Config{DatabaseURL: "memory://"}).InMemory())
	assert.False(t, (&Config{DatabaseURL: "postgres://localhost/billing"}).InMemory())
}
