// Package worker mirrors store changes into the spreadsheet export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/sheets"
	"smartbudget/internal/storage"
)

// ExportWorker applies change events to an exporter.
type ExportWorker struct {
	exporter sheets.Exporter
	logger   *log.Logger

	mu   sync.Mutex
	seen map[appliedKey]uint64
}

// appliedKey scopes versions to the store instance that produced them;
// every process counts from zero, so versions from different origins are
// not comparable.
type appliedKey struct {
	origin string
	id     string
}

func NewExportWorker(exporter sheets.Exporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
		seen:     make(map[appliedKey]uint64),
	}
}

// HandleChange routes one event: added and updated upsert the row, deleted
// removes it, settings changes are ignored. A returned error asks the
// broker to redeliver. Events no newer than one already applied for the
// same transaction from the same origin are skipped, so a redelivered
// upsert cannot resurrect a row.
func (w *ExportWorker) HandleChange(ctx context.Context, ev core.ChangeEvent) error {
	if ev.Kind == core.EventSettingsUpdated {
		w.logger.DebugContext(ctx, "Ignoring settings change", log.FieldVersion, ev.Version)
		return nil
	}
	if w.stale(ev) {
		w.logger.InfoContext(ctx, "Skipping stale change event",
			log.FieldEvent, ev.Kind,
			log.FieldTransactionID, transactionID(ev),
			log.FieldOrigin, ev.Origin,
			log.FieldVersion, ev.Version)
		return nil
	}

	var err error
	switch ev.Kind {
	case core.EventTransactionAdded, core.EventTransactionUpdated:
		if ev.Transaction == nil {
			return fmt.Errorf("%s event without transaction", ev.Kind)
		}
		err = w.exporter.Upsert(ctx, *ev.Transaction)
	case core.EventTransactionDeleted:
		err = w.exporter.Remove(ctx, ev.TransactionID)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", ev.Kind, err)
	}

	w.markApplied(ev)
	w.logger.InfoContext(ctx, "Change exported",
		log.FieldOperation, log.OpExport,
		log.FieldEvent, ev.Kind,
		log.FieldTransactionID, transactionID(ev),
		log.FieldOrigin, ev.Origin,
		log.FieldVersion, ev.Version)
	return nil
}

// StartupSync rewrites the export from the persisted transaction document,
// recovering from events missed while the worker was down.
func (w *ExportWorker) StartupSync(ctx context.Context, kv storage.KV) error {
	txs := []core.Transaction{}
	raw, err := kv.Load(ctx, storage.TransactionsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load transactions: %w", err)
	default:
		if txs, err = storage.DecodeTransactions(raw); err != nil {
			return fmt.Errorf("decode transactions: %w", err)
		}
	}

	if err := w.exporter.Replace(ctx, txs); err != nil {
		return fmt.Errorf("replace export: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", log.FieldCount, len(txs))
	return nil
}

func (w *ExportWorker) stale(ev core.ChangeEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.seen[appliedKey{origin: ev.Origin, id: transactionID(ev)}]
	return ok && ev.Version <= last
}

func (w *ExportWorker) markApplied(ev core.ChangeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[appliedKey{origin: ev.Origin, id: transactionID(ev)}] = ev.Version
}

func transactionID(ev core.ChangeEvent) string {
	if ev.TransactionID != "" {
		return ev.TransactionID
	}
	if ev.Transaction != nil {
		return ev.Transaction.ID
	}
	return ""
}
