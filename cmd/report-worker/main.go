package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"stash/internal/cli"
	applog "stash/internal/log"
	"stash/internal/worker"
)

// report-worker writes a snapshot of every account on a cron schedule,
// so the report sheet has a daily row per account even when nothing
// changed.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentReport)

	logger.Info("Starting report-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	templates := cli.LoadTemplates(logger, cfg.RuleTemplatesFile)

	writer := cli.InitReportWriter(context.Background(), logger, cfg)

	exportWorker := worker.NewExportWorker(repo, writer, templates, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.ReportCron, func() {
		logger.Info("Running scheduled snapshot export", "schedule", cfg.ReportCron)
		if err := exportWorker.ExportAll(ctx); err != nil {
			logger.Error("Scheduled snapshot export failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("Invalid report schedule", "error", err, "schedule", cfg.ReportCron)
		os.Exit(1)
	}

	scheduler.Start()
	logger.Info("Report schedule registered", "schedule", cfg.ReportCron)

	cli.WaitForShutdown(ctx, done)

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("Report-worker stopped")
}
