// Order router - matches shop orders to channel stock, places channel
// purchases and relays cancellations and tracking between them.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"order-router/internal/adapter"
	"order-router/internal/caller"
	"order-router/internal/config"
	"order-router/internal/handler"
	"order-router/internal/match"
	"order-router/internal/middleware"
	"order-router/internal/oauth"
	"order-router/internal/placement"
	"order-router/internal/reconcile"
	"order-router/internal/shopify"
	"order-router/internal/store"
	"order-router/internal/store/memory"
	"order-router/internal/store/postgres"
	"order-router/internal/transport"
	"order-router/internal/webhook"
	"order-router/internal/wix"
	"order-router/internal/woocommerce"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("public_url", cfg.PublicURL),
		slog.Bool("postgres", cfg.Secrets.DatabaseURL != ""),
		slog.Bool("redis", cfg.Secrets.RedisURL != ""),
	)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deduper, closeDeduper, err := openDeduper(cfg)
	if err != nil {
		return err
	}
	defer closeDeduper()

	httpClient := transport.NewClient(transport.Options{
		Timeout:     time.Duration(cfg.AdapterTimeout),
		Fingerprint: cfg.Fingerprint(),
	})

	registry := adapter.NewRegistry()
	registry.Register(shopify.ID, shopify.New(httpClient))
	registry.Register(woocommerce.ID, woocommerce.New(httpClient))
	registry.Register(wix.ID, wix.New(httpClient))

	dispatcher := adapter.NewDispatcher(registry,
		adapter.WithTimeout(time.Duration(cfg.AdapterTimeout)),
		adapter.WithHTTPClient(httpClient),
		adapter.WithRateLimit(cfg.AdapterRateLimit, burstFor(cfg.AdapterRateLimit)),
		adapter.WithLogger(logger),
	)

	matcher := match.New(st, dispatcher, logger)
	placer := placement.New(st, dispatcher, logger, cfg.PlacementConcurrency)
	reconciler := reconcile.New(st, dispatcher, logger)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	queue := webhook.NewQueue(cfg.WebhookWorkers, cfg.WebhookQueueSize, logger)
	queue.Start(queueCtx)

	pipeline := webhook.NewPipeline(webhook.Deps{
		Store:      st,
		Adapters:   dispatcher,
		Reconciler: reconciler,
		Matcher:    matcher,
		Queue:      queue,
		Deduper:    deduper,
		Logger:     logger,
	})

	signer, err := oauth.NewSigner(cfg.Secrets.OAuthStateSecret)
	if err != nil {
		return fmt.Errorf("creating state signer: %w", err)
	}
	broker := oauth.NewBroker(st, dispatcher, signer, oauth.Config{
		DashboardURL: cfg.DashboardURL,
		RedirectURI:  cfg.RedirectURI(),
	}, logger)

	h := handler.New(handler.Deps{
		Webhooks: pipeline,
		OAuth:    broker,
		Matcher:  matcher,
		Placer:   placer,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery sits inside RequestID so panics are logged with the id.
	httpHandler := middleware.Chain(
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Recovery(logger),
		caller.Middleware(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
		// Accepted webhooks keep draining after the listener closes.
		if err := queue.Shutdown(shutdownCtx); err != nil {
			logger.Warn("webhook queue did not drain", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
	return nil
}

// openStore picks Postgres when a database URL is configured and the
// in-memory store otherwise. SEED_FILE preloads the memory store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Secrets.DatabaseURL == "" {
		st := memory.New()
		if path := os.Getenv("SEED_FILE"); path != "" {
			if err := st.LoadSeed(path); err != nil {
				return nil, nil, fmt.Errorf("loading seed: %w", err)
			}
			logger.Info("memory store seeded", slog.String("path", path))
		}
		return st, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Secrets.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { closeQuietly(db, logger) }
	if err := postgres.Migrate(db, logger); err != nil {
		closeDB()
		return nil, nil, err
	}
	return postgres.New(db, logger), closeDB, nil
}

func closeQuietly(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

// openDeduper shares delivery ids through Redis when configured so every
// replica drops the same retries.
func openDeduper(cfg *config.Config) (webhook.Deduper, func(), error) {
	if cfg.Secrets.RedisURL == "" {
		return webhook.NewMemoryDeduper(webhook.DefaultDedupTTL), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Secrets.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return webhook.NewRedisDeduper(client, "", webhook.DefaultDedupTTL), func() { _ = client.Close() }, nil
}

// burstFor allows one second's worth of calls at once.
func burstFor(rps float64) int {
	if rps <= 0 {
		return 0
	}
	return int(math.Max(1, math.Ceil(rps)))
}

// initLogger creates a structured logger. JSON in production for log
// aggregation, text otherwise.
func initLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
