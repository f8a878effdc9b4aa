package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	LogLevel   slog.Level

	StoreAPIURL     string
	ProductCacheTTL time.Duration

	// Optional backends. Empty means in-memory sessions and no checkout journal.
	RedisURL    string
	DatabaseURL string
	SessionTTL  time.Duration

	TracingEnabled bool

	Stripe struct {
		PublishableKey string
		APIURL         string
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists (useful for local dev)
	_ = godotenv.Load()

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	storeAPIURL := strings.TrimRight(os.Getenv("STORE_API_URL"), "/")
	if storeAPIURL == "" {
		return nil, fmt.Errorf("STORE_API_URL must be set")
	}

	stripeKey := os.Getenv("STRIPE_PUBLISHABLE_KEY")
	if stripeKey == "" {
		return nil, fmt.Errorf("STRIPE_PUBLISHABLE_KEY must be set")
	}

	logLevel, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	cacheTTL, err := durationEnv("PRODUCT_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := durationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	tracing := false
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		tracing, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TRACING_ENABLED: %w", err)
		}
	}

	cfg := &Config{
		ServerPort:      serverPort,
		LogLevel:        logLevel,
		StoreAPIURL:     storeAPIURL,
		ProductCacheTTL: cacheTTL,
		RedisURL:        os.Getenv("REDIS_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SessionTTL:      sessionTTL,
		TracingEnabled:  tracing,
	}
	cfg.Stripe.PublishableKey = stripeKey
	cfg.Stripe.APIURL = os.Getenv("STRIPE_API_URL")

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("LOG_LEVEL: unknown level %q", v)
}
