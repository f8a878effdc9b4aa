package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fsanano/storefront/internal/config"
	"fsanano/storefront/internal/handler"
	"fsanano/storefront/internal/repository"
	"fsanano/storefront/internal/service/payment"
	"fsanano/storefront/internal/service/storeapi"
	"fsanano/storefront/internal/session"
	"fsanano/storefront/internal/telemetry"
	"fsanano/storefront/internal/workspace"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	sweepInterval = time.Minute
	workspaceIdle = 30 * time.Minute
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := telemetry.SetupTracing(os.Stdout)
		if err != nil {
			fatal(logger, "failed to set up tracing", err)
		}
		defer shutdown(context.Background())
	}

	clock := clockwork.NewRealClock()

	// 2. Store API and payment processor
	api := storeapi.NewClient(storeapi.Config{
		APIURL:   cfg.StoreAPIURL,
		CacheTTL: cfg.ProductCacheTTL,
	})
	tokenizer := payment.NewStripeTokenizer(payment.StripeConfig{
		PublishableKey: cfg.Stripe.PublishableKey,
		APIURL:         cfg.Stripe.APIURL,
	})

	// 3. Sessions: Redis when configured, memory otherwise
	var store session.Store = session.NewMemoryStore(clock)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fatal(logger, "invalid REDIS_URL", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal(logger, "failed to ping redis", err)
		}
		store = session.NewRedisStore(rdb, clock)
		logger.Info("using redis session store")
	}
	sessions := session.NewManager(store, api, cfg.SessionTTL, clock, logger)

	// 4. Optional checkout journal
	var (
		journal  *repository.CheckoutRepository
		attempts handler.AttemptLister
	)
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "failed to connect to database", err)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			fatal(logger, "failed to ping database", err)
		}
		if err := repository.Migrate(dbPool); err != nil {
			fatal(logger, "failed to migrate database", err)
		}
		journal = repository.NewCheckoutRepository(dbPool)
		attempts = journal
		logger.Info("checkout journal enabled")
	}

	wsCfg := workspace.Config{
		API:       api,
		Tokenizer: tokenizer,
		Clock:     clock,
		Logger:    logger,
	}
	if journal != nil {
		wsCfg.Journal = journal
	}
	registry := workspace.NewRegistry(wsCfg)
	go registry.Run(ctx, sweepInterval, workspaceIdle)

	h := handler.NewHandler(handler.Config{
		Sessions: sessions,
		Registry: registry,
		Attempts: attempts,
		Logger:   logger,
	})

	// 5. Setup Server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: otelhttp.NewHandler(h, "storefront"),
	}

	// 6. Run Server with Graceful Shutdown
	go func() {
		logger.Info("starting server", slog.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server failed", err)
		}
	}()

	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	logger.Info("server exiting")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
