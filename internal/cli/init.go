// Package cli provides the initialization steps shared by cmd/smartbudget,
// cmd/budget-worker and cmd/budgetctl.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"smartbudget/internal/backend"
	"smartbudget/internal/budget"
	"smartbudget/internal/config"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
	"smartbudget/internal/storage"
)

// LeaseTTL bounds how long a crashed writer blocks the next one.
const LeaseTTL = 30 * time.Second

// SetupLogger initializes structured logging at the given level and installs
// it as the slog default. Unknown levels fall back to info.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured backend or exits the process.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.Result {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Open(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// ClaimBackend takes the write lease for process and returns the owner id
// its store tags events with. The memory backend is private to the process
// and gets no lease.
func ClaimBackend(ctx context.Context, cfg *config.Config, res *backend.Result, process string) (*storage.Lease, string, error) {
	owner := uuid.NewString()
	if cfg.DataBackend == config.BackendMemory {
		return nil, owner, nil
	}
	lease := storage.NewLease(res.KV, owner, process, LeaseTTL)
	if err := lease.Acquire(ctx); err != nil {
		return nil, "", err
	}
	return lease, owner, nil
}

// HoldLease renews lease until ctx is done. Renewal failures are logged.
func HoldLease(ctx context.Context, logger *log.Logger, lease *storage.Lease) {
	if lease == nil {
		return
	}
	ticker := time.NewTicker(lease.TTL() / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Acquire(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Failed to renew backend lease", log.FieldError, err)
			}
		}
	}
}

// ReleaseLease gives up lease so the next writer need not wait for expiry.
func ReleaseLease(ctx context.Context, logger *log.Logger, lease *storage.Lease) {
	if lease == nil {
		return
	}
	if err := lease.Release(ctx); err != nil {
		logger.Warn("Failed to release backend lease", log.FieldError, err)
	}
}

// NewStore builds the budget store over an opened backend. origin tags the
// store's change events.
func NewStore(ctx context.Context, logger *log.Logger, cfg *config.Config, res *backend.Result, m *metrics.Metrics, origin string) *budget.Store {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.Local
	}
	return budget.NewStore(ctx, res.KV, budget.Options{
		Logger:           logger,
		Metrics:          m,
		Location:         loc,
		SubscriberBuffer: cfg.SubscriberBuffer,
		Origin:           origin,
	})
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has run or the timeout expired.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
