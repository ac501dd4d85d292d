package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smartbudget/internal/backend"
	"smartbudget/internal/budget"
	"smartbudget/internal/cli"
	"smartbudget/internal/config"
	"smartbudget/internal/log"
)

const flushTimeout = 10 * time.Second

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "budgetctl",
		Short: "Manage smartbudget transactions and settings from the terminal",
		Long: `budgetctl operates directly on the configured smartbudget backend.

It reads the same environment as the server (DATA_BACKEND, SQLITE_DB_PATH,
REDIS_URL, TIMEZONE, AMQP_URL, ...). Only one process may write a shared
backend at a time: while the server runs it holds the backend and budgetctl
refuses to start, so stop the server first or go through its HTTP API. A
crashed writer's claim expires after 30s. The memory backend only lives for
a single command.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		a.addCmd(),
		a.listCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.monthCmd(),
		a.summaryCmd(),
		a.breakdownCmd(),
		a.settingsCmd(),
		a.toolCmd(),
		a.exportCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	lvl, err := log.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	// stdout is reserved for command output
	a.logger = log.New(log.Config{Level: lvl, Component: log.ComponentApp, Output: cmd.ErrOrStderr()})
	a.cfg = config.Load()
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	return nil
}

// withStore opens the backend, runs fn against a store and then flushes,
// forwards any change events and closes everything.
func (a *app) withStore(ctx context.Context, fn func(ctx context.Context, store *budget.Store) error) (err error) {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(a.logger).Open(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if closeErr := res.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close backend: %w", closeErr)
		}
	}()

	lease, owner, err := cli.ClaimBackend(ctx, a.cfg, res, "budgetctl")
	if err != nil {
		return fmt.Errorf("claim backend: %w", err)
	}
	leaseCtx, stopLease := context.WithCancel(context.WithoutCancel(ctx))
	var holder errgroup.Group
	holder.Go(func() error {
		cli.HoldLease(leaseCtx, a.logger, lease)
		return nil
	})
	defer func() {
		stopLease()
		_ = holder.Wait()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		cli.ReleaseLease(releaseCtx, a.logger, lease)
	}()

	store := cli.NewStore(ctx, a.logger, a.cfg, res, nil, owner)

	var g errgroup.Group
	if res.Changes != nil {
		events, unsubscribe := store.Subscribe(a.cfg.SubscriberBuffer)
		defer unsubscribe()
		fwd := budget.NewForwarder(res.Changes, a.logger, nil)
		g.Go(func() error { return fwd.Run(context.WithoutCancel(ctx), events) })
	}

	runErr := fn(ctx, store)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	closeErr := store.Close(closeCtx)
	// Close ends the subscription, which lets the forwarder drain and return.
	fwdErr := g.Wait()

	return errors.Join(runErr, closeErr, fwdErr)
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
