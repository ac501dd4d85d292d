package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"smartbudget/internal/cli"
	"smartbudget/internal/config"
	"smartbudget/internal/log"
	"smartbudget/internal/sheets"
	gsheet "smartbudget/internal/sheets/google"
	"smartbudget/internal/sheets/memory"
	"smartbudget/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting budget-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	// Initialize the export target; without a spreadsheet rows are kept in
	// memory, which is only useful for local runs.
	var exporter sheets.Exporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets client initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		exporter = memory.New()
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	if res.Changes == nil {
		logger.Error("Failed to connect to the broker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		_ = res.Close()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	w := worker.NewExportWorker(exporter, logger)

	// Only a shared sqlite file or redis database holds the server's state;
	// a memory backend would wipe the sheet with an empty document.
	switch {
	case !cfg.SheetsStartupSync:
		logger.Info("Startup sync disabled")
	case cfg.DataBackend == config.BackendMemory:
		logger.Info("Skipping startup sync - backend is not shared", "backend", cfg.DataBackend)
	default:
		if err := w.StartupSync(ctx, res.KV); err != nil {
			// Don't exit - events still flow
			logger.Error("Failed startup sync", log.FieldError, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return res.Changes.ConsumeChanges(gctx, w.HandleChange)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		_ = res.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
