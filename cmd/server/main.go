/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the sponsorship engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load layered config
  2. Build the zap logger
  3. Initialize SQLite store
  4. Connect the Redis summary cache (when enabled)
  5. Create API handler, settlement scheduler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (default: $SPONSOR_CONFIG_PATH or ./config.yaml)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

ENVIRONMENT:
  SPONSOR_* variables override the config file, e.g.
  SPONSOR_SERVER_PORT=9090, SPONSOR_CACHE_ENABLED=true,
  SPONSOR_CACHE_REDIS_ADDR=redis:6379. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the settlement scheduler
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout)
  4. Close Redis and database connections

EXAMPLES:
  ./server -db="./data/sponsorship.db"
  ./server -db=":memory:" -port=3000
  SPONSOR_LOGGING_FORMAT=console ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/sponsorship-engine/api"
	"github.com/warp/sponsorship-engine/config"
	"github.com/warp/sponsorship-engine/logging"
	"github.com/warp/sponsorship-engine/store/redis"
	"github.com/warp/sponsorship-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	metrics := api.NewMetrics()
	var opts []api.Option

	// Summary cache
	if cfg.Cache.Enabled {
		client, err := redis.Connect(context.Background(), cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		cache := redis.NewSummaryCache(client, cfg.Cache.TTL, redis.WithLogger(logger.Named("cache")))
		opts = append(opts, api.WithCache(cache))
		logger.Info("summary cache enabled",
			zap.String("redis_addr", cfg.Cache.RedisAddr),
			zap.Duration("ttl", cfg.Cache.TTL))
	}

	handler := api.NewHandler(store, logger, metrics, opts...)
	router := api.NewRouter(handler, cfg)

	scheduler := api.NewSettlementScheduler(handler, cfg.Scheduler)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
