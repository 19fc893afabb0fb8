// Package main is the entry point for the ingest daemon: the HTTP edge that
// accepts pageview/goal events, applies them to hourly/daily rollups, and
// runs the retention job on a schedule (rebuilds run only on demand,
// through the cron endpoint).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternmetrics/ingest-core/internal/config"
	"github.com/lanternmetrics/ingest-core/internal/database"
	"github.com/lanternmetrics/ingest-core/internal/httpapi"
	"github.com/lanternmetrics/ingest-core/internal/logging"
	"github.com/lanternmetrics/ingest-core/internal/repository"
)

func main() {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db); err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to get schema version")
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info().Str("schema_version", schemaVersion).Int("migrations_applied", migrationCount).Msg("database schema ready")
	}

	repos := repository.NewRepositories(db)
	deps := httpapi.NewDeps(cfg, repos, logger)

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.RetentionEnabled {
		go deps.GC.RunScheduled(ctx, cfg.RetentionInterval)
		logger.Info().Dur("interval", cfg.RetentionInterval).Msg("retention gc scheduled")
	}

	router := httpapi.NewRouter(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info().Msg("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	logger.Info().Int("port", cfg.Port).Msg("starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	logger.Info().Msg("server stopped")
}
