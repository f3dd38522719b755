package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/budget"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting bilancio-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	b, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err)
		os.Exit(1)
	}
	if b.Broker == nil {
		logger.Error("The worker needs a message broker, set AMQP_URL")
		_ = b.Close()
		os.Exit(1)
	}

	caches := cache.NewManager(logger.Logger)
	budgets := budget.NewWatcher(b.Store, logger)
	caches.Register(budgets.CacheLimits(1024, time.Minute))

	var mirror sheets.EntryMirror
	if cfg.MirrorEnabled() {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			_ = b.Close()
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.New(b.Broker, worker.NewDispatcher(budgets, mirror, logger), worker.Options{
		Concurrency: cfg.WorkerConcurrency,
		Caches:      caches,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := b.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped", log.FieldError, err)
		_ = b.Close()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
