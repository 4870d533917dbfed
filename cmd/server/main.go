/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the club points engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the optional YAML config
  2. Initialize SQLite store
  3. Wire hasher, token manager, notifier, and engine
  4. Bootstrap the seed admin on an empty database
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (optional; defaults apply when absent)
  -addr    Listen address, overrides the config file
  -db      SQLite database path, overrides the config file
           Use ":memory:" for an in-memory database
  -demo    Load demo members, catalog, and a pending redemption

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with the default local database
  ./server

  # Run an in-memory demo
  ./server -db=":memory:" -demo

  # Run with a config file
  ./server -config=./club.yaml

SEE ALSO:
  - config/config.go: Configuration
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clubhouse/points-engine/api"
	"github.com/clubhouse/points-engine/auth"
	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/config"
	"github.com/clubhouse/points-engine/notify"
	"github.com/clubhouse/points-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config path")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	demo := flag.Bool("demo", false, "load demo data on startup")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire the engine
	hasher := auth.NewHasher()
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL.Std())
	notifier := notify.NewLogNotifier(log)
	engine := club.NewEngine(store, hasher, notifier, log)

	ctx := context.Background()
	if err := api.Bootstrap(ctx, store, hasher, cfg.Admin, log); err != nil {
		log.Fatal("failed to bootstrap admin", zap.Error(err))
	}
	if *demo {
		if err := api.LoadDemo(ctx, engine, store, cfg.Admin.Email); err != nil {
			log.Warn("failed to load demo data", zap.Error(err))
		}
	}

	handler := api.NewHandler(engine, tokens, log)
	router := api.NewRouter(handler, tokens, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
