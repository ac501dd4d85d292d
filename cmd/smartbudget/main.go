package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"smartbudget/internal/assistant"
	"smartbudget/internal/budget"
	"smartbudget/internal/cli"
	apphttp "smartbudget/internal/http"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	m := metrics.New()
	res := cli.InitBackend(context.Background(), logger, cfg)
	lease, owner, err := cli.ClaimBackend(context.Background(), cfg, res, "smartbudget")
	if err != nil {
		logger.Error("Backend is owned by another writer", log.FieldError, err, "backend", cfg.DataBackend)
		_ = res.Close()
		os.Exit(1)
	}
	store := cli.NewStore(context.Background(), logger, cfg, res, m, owner)
	tools := assistant.NewToolbox(store, logger)

	srv := apphttp.NewServer(":"+cfg.Port, store, tools, apphttp.Options{
		Logger:             logger,
		Metrics:            m,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	closeAll := func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := store.Close(ctx); err != nil {
			logger.Error("Budget store closed with unsaved changes", log.FieldError, err)
		}
		cli.ReleaseLease(ctx, logger, lease)
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	}
	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, closeAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting smartbudget server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp_enabled", res.Changes != nil,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		cli.HoldLease(gctx, logger, lease)
		return nil
	})

	if res.Changes != nil {
		events, unsubscribe := store.Subscribe(cfg.SubscriberBuffer)
		defer unsubscribe()
		fwd := budget.NewForwarder(res.Changes, logger, m)
		g.Go(func() error {
			return fwd.Run(gctx, events)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		closeAll(shutdownCtx)
		cancel()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	v := store.Versions()
	logger.Info("Server stopped gracefully",
		"version", v.Current,
		"durable", v.Durable)
}
