// Package cli provides common initialization utilities shared by
// cmd/stash, cmd/stash-worker, and cmd/report-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stash/internal/config"
	applog "stash/internal/log"
	"stash/internal/report"
	"stash/internal/report/google"
	"stash/internal/report/memory"
	"stash/internal/storage"
)

// SetupLogger initializes the component logger and sets it as the
// process default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// LoadTemplates loads allocation rule templates from the configured
// file, or the built-in defaults. Exits the process on failure.
func LoadTemplates(logger *applog.Logger, path string) *config.RuleTemplates {
	templates, err := config.LoadRuleTemplates(path)
	if err != nil {
		logger.Error("Failed to load rule templates", "error", err, "path", path)
		os.Exit(1)
	}
	return templates
}

// InitReportWriter selects the snapshot report sink: Google Sheets when
// a spreadsheet is configured, otherwise an in-memory sink so local
// runs still exercise the export path. Exits the process when the
// configured Google client cannot be built.
func InitReportWriter(ctx context.Context, logger *applog.Logger, cfg *config.Config) report.SnapshotWriter {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - using in-memory report sink")
		return memory.New()
	}

	client, err := google.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets report sink initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}

		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-time.After(2 * time.Second):
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
