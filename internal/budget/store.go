// Package budget holds the authoritative in-memory transaction collection and
// settings, keeps them persisted through a storage.KV, and serves derived
// views of them.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smartbudget/internal/analytics"
	"smartbudget/internal/cache"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
	"smartbudget/internal/storage"
)

var (
	// ErrStoreClosed is returned by mutations after Close.
	ErrStoreClosed = errors.New("budget store closed")
	// ErrNotDurable is returned by Flush when the latest write of a document failed.
	ErrNotDurable = errors.New("state not durable")
)

const (
	defaultSubscriberBuffer = 64
	monthCacheSize          = 64
)

// Options configures a Store. Zero values pick sensible defaults; an empty
// Origin gets a fresh id per store.
type Options struct {
	Logger           *log.Logger
	Metrics          *metrics.Metrics
	Location         *time.Location
	Now              func() time.Time
	IDFunc           func() string
	SubscriberBuffer int
	Origin           string
}

// Versions reports how far persistence has caught up with memory.
type Versions struct {
	Current   uint64 `json:"current"`
	Attempted uint64 `json:"attempted"`
	Durable   uint64 `json:"durable"`
}

// Lag is the number of versions not yet durable.
func (v Versions) Lag() uint64 {
	return v.Current - v.Durable
}

type monthKey struct {
	version uint64
	year    int
	month   time.Month
}

// Store owns transactions and settings. All methods are safe for concurrent
// use; mutations are applied in the order they acquire the lock.
type Store struct {
	logger  *log.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
	newID   func() string
	buffer  int
	origin  string

	mu        sync.Mutex
	closed    bool
	txs       []core.Transaction
	settings  core.Settings
	version   uint64
	txVersion uint64

	summaryAt   uint64
	summary     *core.FinancialSummary
	breakdownAt uint64
	breakdown   []core.CategorySummary
	months      *cache.LRU[monthKey, []core.Transaction]

	subs   map[int]*subscriber
	nextID int

	txWriter       *docWriter
	settingsWriter *docWriter
	writers        errgroup.Group
	closeOnce      sync.Once
}

// NewStore loads both documents from kv and starts the background writers.
// A missing or unreadable document falls back to its default; the failure
// is logged and never returned.
func NewStore(ctx context.Context, kv storage.KV, opts Options) *Store {
	s := &Store{
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		loc:      opts.Location,
		now:      opts.Now,
		newID:    opts.IDFunc,
		buffer:   opts.SubscriberBuffer,
		origin:   opts.Origin,
		settings: core.DefaultSettings(),
		txs:      []core.Transaction{},
		months:   cache.NewLRU[monthKey, []core.Transaction](monthCacheSize, 0),
		subs:     make(map[int]*subscriber),
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentStore)
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	if s.buffer <= 0 {
		s.buffer = defaultSubscriberBuffer
	}
	if s.origin == "" {
		s.origin = uuid.NewString()
	}

	s.load(ctx, kv)

	s.txWriter = newDocWriter(storage.TransactionsKey, kv, s.logger, s.metrics)
	s.settingsWriter = newDocWriter(storage.SettingsKey, kv, s.logger, s.metrics)
	for _, w := range []*docWriter{s.txWriter, s.settingsWriter} {
		w.onProgress = s.reportVersions
		s.writers.Go(w.run)
	}

	s.metrics.SetTransactions(len(s.txs))
	s.reportVersions()
	return s
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) load(ctx context.Context, kv storage.KV) {
	if raw, err := kv.Load(ctx, storage.TransactionsKey); err == nil {
		txs, err := storage.DecodeTransactions(raw)
		if err != nil {
			s.logger.ErrorContext(ctx, "Stored transactions unreadable, starting empty",
				log.FieldOperation, log.OpLoad, log.FieldError, err)
		} else {
			s.txs = txs
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.ErrorContext(ctx, "Failed to load transactions, starting empty",
			log.FieldOperation, log.OpLoad, log.FieldError, err)
	}

	if raw, err := kv.Load(ctx, storage.SettingsKey); err == nil {
		settings, err := storage.DecodeSettings(raw)
		if err != nil {
			s.logger.ErrorContext(ctx, "Stored settings unreadable, using defaults",
				log.FieldOperation, log.OpLoad, log.FieldError, err)
		} else {
			s.settings = settings
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.ErrorContext(ctx, "Failed to load settings, using defaults",
			log.FieldOperation, log.OpLoad, log.FieldError, err)
	}

	s.logger.InfoContext(ctx, "Budget store loaded",
		log.FieldCount, len(s.txs),
		"currency", s.settings.Currency)
}

// Add assigns an id and creation time to draft, prepends it and persists
// the collection. Drafts are stored as given; validation is up to callers.
func (s *Store) Add(ctx context.Context, draft core.TransactionDraft) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Transaction{}, ErrStoreClosed
	}

	tx := core.Transaction{
		ID:          s.newID(),
		Type:        draft.Type,
		Amount:      draft.Amount,
		Category:    draft.Category,
		Description: draft.Description,
		Date:        draft.Date,
		CreatedAt:   s.now(),
	}

	txs := make([]core.Transaction, 0, len(s.txs)+1)
	txs = append(txs, tx)
	s.txs = append(txs, s.txs...)

	s.commitTransactionsLocked(ctx, log.OpAdd)
	s.logger.LogFields(ctx, slog.LevelInfo, "Transaction added", log.NewFields().
		WithOperation(log.OpAdd).
		WithTransaction(tx.ID, string(tx.Type), string(tx.Category), tx.Amount.String()))

	stored := tx
	s.publishLocked(core.ChangeEvent{
		Kind:          core.EventTransactionAdded,
		TransactionID: tx.ID,
		Transaction:   &stored,
	})
	return tx, nil
}

// Update merges patch into the transaction with the given id. An unknown id
// is a no-op and reports found=false.
func (s *Store) Update(ctx context.Context, id string, patch core.TransactionPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	i := s.indexLocked(id)
	if i < 0 {
		s.logger.DebugContext(ctx, "Update of unknown transaction ignored", log.FieldTransactionID, id)
		return false, nil
	}

	txs := make([]core.Transaction, len(s.txs))
	copy(txs, s.txs)
	txs[i] = patch.Apply(txs[i])
	s.txs = txs

	s.commitTransactionsLocked(ctx, log.OpUpdate)
	s.logger.InfoContext(ctx, "Transaction updated", log.FieldTransactionID, id)

	updated := txs[i]
	s.publishLocked(core.ChangeEvent{
		Kind:          core.EventTransactionUpdated,
		TransactionID: id,
		Transaction:   &updated,
	})
	return true, nil
}

// Delete removes the transaction with the given id. An unknown id is a
// no-op and reports found=false.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	i := s.indexLocked(id)
	if i < 0 {
		s.logger.DebugContext(ctx, "Delete of unknown transaction ignored", log.FieldTransactionID, id)
		return false, nil
	}

	txs := make([]core.Transaction, 0, len(s.txs)-1)
	txs = append(txs, s.txs[:i]...)
	s.txs = append(txs, s.txs[i+1:]...)

	s.commitTransactionsLocked(ctx, log.OpDelete)
	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)

	s.publishLocked(core.ChangeEvent{
		Kind:          core.EventTransactionDeleted,
		TransactionID: id,
	})
	return true, nil
}

// UpdateSettings shallow-merges patch into the settings and persists them.
func (s *Store) UpdateSettings(ctx context.Context, patch core.SettingsPatch) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Settings{}, ErrStoreClosed
	}

	s.settings = patch.Apply(s.settings)
	s.version++
	s.metrics.Mutation(log.OpSettings)

	data, err := storage.EncodeSettings(s.settings, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode settings", log.FieldError, err)
		s.settingsWriter.skip(s.version, fmt.Errorf("encode settings: %w", err))
	} else {
		s.settingsWriter.submit(s.version, data)
	}

	s.logger.InfoContext(ctx, "Settings updated",
		"language", s.settings.Language,
		"currency", s.settings.Currency,
		"notifications", s.settings.Notifications)

	settings := s.settings
	s.publishLocked(core.ChangeEvent{Kind: core.EventSettingsUpdated, Settings: &settings})
	return settings, nil
}

func (s *Store) commitTransactionsLocked(ctx context.Context, op string) {
	s.version++
	s.txVersion++
	s.metrics.Mutation(op)
	s.metrics.SetTransactions(len(s.txs))

	data, err := storage.EncodeTransactions(s.txs, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode transactions", log.FieldError, err)
		s.txWriter.skip(s.version, fmt.Errorf("encode transactions: %w", err))
		return
	}
	s.txWriter.submit(s.version, data)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.txs {
		if s.txs[i].ID == id {
			return i
		}
	}
	return -1
}

// Transaction looks up one transaction by id.
func (s *Store) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.txs[i], true
	}
	return core.Transaction{}, false
}

// Transactions returns a copy of the collection, newest first.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs...)
}

// Settings returns the current settings.
func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Summary returns totals over the whole collection.
func (s *Store) Summary() core.FinancialSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil || s.summaryAt != s.txVersion {
		sum := analytics.Summarize(s.txs)
		s.summary = &sum
		s.summaryAt = s.txVersion
	}
	return *s.summary
}

// Breakdown returns per-category expense aggregates, largest first.
func (s *Store) Breakdown() []core.CategorySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakdown == nil || s.breakdownAt != s.txVersion {
		s.breakdown = analytics.Breakdown(s.txs)
		s.breakdownAt = s.txVersion
	}
	return append([]core.CategorySummary{}, s.breakdown...)
}

// Filter applies q to the collection.
func (s *Store) Filter(q analytics.Query) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return analytics.Filter(s.txs, q)
}

// TransactionsByMonth returns transactions dated in the given month of the
// store's location.
func (s *Store) TransactionsByMonth(year int, month time.Month) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := monthKey{version: s.txVersion, year: year, month: month}
	if txs, ok := s.months.Get(key); ok {
		return append([]core.Transaction{}, txs...)
	}
	txs := analytics.ByMonth(s.txs, year, month, s.loc)
	s.months.Set(key, txs)
	return append([]core.Transaction{}, txs...)
}

// Origin identifies this store instance in published events.
func (s *Store) Origin() string {
	return s.origin
}

// Location is the zone month views are computed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Version returns the current store version. It increases by one per
// applied mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Versions reports current, attempted and durable versions.
func (s *Store) Versions() Versions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionsLocked()
}

func (s *Store) versionsLocked() Versions {
	v := Versions{Current: s.version, Attempted: s.version, Durable: s.version}
	for _, w := range []*docWriter{s.txWriter, s.settingsWriter} {
		submitted, attempted, durable := w.state()
		if attempted < submitted && attempted < v.Attempted {
			v.Attempted = attempted
		}
		if durable < submitted && durable < v.Durable {
			v.Durable = durable
		}
	}
	return v
}

func (s *Store) reportVersions() {
	v := s.Versions()
	s.metrics.SetVersions(v.Current, v.Attempted, v.Durable)
}

// Flush waits until the state current at call time has been written. It
// returns ErrNotDurable if the latest write of either document failed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	targets := map[*docWriter]uint64{}
	for _, w := range []*docWriter{s.txWriter, s.settingsWriter} {
		submitted, _, _ := w.state()
		targets[w] = submitted
	}
	s.mu.Unlock()

	var errs []error
	for w, target := range targets {
		ok, err := w.wait(ctx, target)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("flush %s: %w", documentName(w.key), ctxErr)
		}
		if !ok {
			errs = append(errs, fmt.Errorf("flush %s: %w: %w", documentName(w.key), ErrNotDurable, err))
		}
	}
	return errors.Join(errs...)
}

// Close rejects further mutations, writes any pending snapshots, stops the
// writers and closes all subscriptions. It does not close the KV.
func (s *Store) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for id, sub := range s.subs {
			sub.close()
			delete(s.subs, id)
		}
		s.mu.Unlock()

		close(s.txWriter.stop)
		close(s.settingsWriter.stop)
	})

	done := make(chan error, 1)
	go func() { done <- s.writers.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("close budget store: %w", ctx.Err())
	}

	v := s.Versions()
	if v.Lag() > 0 {
		return fmt.Errorf("close budget store: %w (durable %d of %d)", ErrNotDurable, v.Durable, v.Current)
	}
	return nil
}
