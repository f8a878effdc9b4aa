package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Setenv("STORE_API_URL", "http://api.local/api/")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "pk_test_123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PRODUCT_CACHE_TTL", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("TRACING_ENABLED", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "http://api.local/api", cfg.StoreAPIURL, "trailing slash is trimmed")
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.ProductCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.TracingEnabled)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "pk_test_123", cfg.Stripe.PublishableKey)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PRODUCT_CACHE_TTL", "5s")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STRIPE_API_URL", "http://stripe.local")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ProductCacheTTL)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "http://stripe.local", cfg.Stripe.APIURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("STORE_API_URL", "")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "pk_test_123")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_API_URL")

	t.Setenv("STORE_API_URL", "http://api.local")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "")
	_, err = Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_PUBLISHABLE_KEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "loud")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PRODUCT_CACHE_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PRODUCT_CACHE_TTL")
}
