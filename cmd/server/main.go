/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the finance-charge engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and YAML configuration
  2. Initialize SQLite store
  3. Push per-company charge settings from config into the store
  4. Create API handler and router
  5. Start the charge scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (default: config.yaml, optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for an in-flight run
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -config=./config.yaml

  # In-memory database via environment
  DB_PATH=":memory:" ./server

ENVIRONMENT:
  PORT, DB_PATH override the YAML values. A .env file is read if present.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled charge runs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/clearbook/finance-engine/api"
	"github.com/clearbook/finance-engine/config"
	"github.com/clearbook/finance-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	// .env is optional, used for local overrides.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}

	store, err := sqlite.New(cfg.Server.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, log)

	// Company settings declared in the config file win over what is in
	// the database, so deployments stay reproducible.
	for _, company := range cfg.Companies {
		cc, err := company.CompanyConfig()
		if err != nil {
			log.Fatal().Err(err).Str("company", company.ID).Msg("invalid company configuration")
		}
		if err := store.PutCompanyConfig(context.Background(), cc); err != nil {
			log.Fatal().Err(err).Str("company", company.ID).Msg("failed to store company configuration")
		}
	}

	router := api.NewRouter(handler)

	scheduler := api.NewChargeScheduler(handler, log)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.BatchSize = cfg.Scheduler.BatchSize
	if cfg.Scheduler.IntervalMinutes > 0 {
		scheduler.CheckInterval = time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}
