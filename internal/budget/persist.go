package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
	"smartbudget/internal/storage"
)

const saveTimeout = 30 * time.Second

type snapshot struct {
	version uint64
	data    []byte
}

// docWriter owns the persistence of one document. Submitted snapshots
// replace any snapshot still waiting, so a slow backend sees only the latest
// state.
type docWriter struct {
	key     string
	kv      storage.KV
	logger  *log.Logger
	metrics *metrics.Metrics

	wake chan struct{}
	stop chan struct{}

	// onProgress runs after every attempt with no locks held.
	onProgress func()

	mu        sync.Mutex
	pending   *snapshot
	submitted uint64
	attempted uint64
	durable   uint64
	lastErr   error
	progress  chan struct{}
}

func newDocWriter(key string, kv storage.KV, logger *log.Logger, m *metrics.Metrics) *docWriter {
	return &docWriter{
		key:      key,
		kv:       kv,
		logger:   logger,
		metrics:  m,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		progress: make(chan struct{}),
	}
}

func (w *docWriter) submit(version uint64, data []byte) {
	w.mu.Lock()
	w.pending = &snapshot{version: version, data: data}
	w.submitted = version
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// skip marks version as handled without writing. Used when a snapshot could
// not be encoded.
func (w *docWriter) skip(version uint64, err error) {
	w.mu.Lock()
	w.submitted = version
	w.attempted = version
	w.lastErr = err
	w.signalLocked()
	w.mu.Unlock()
}

func (w *docWriter) run() error {
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return nil
		}
	}
}

func (w *docWriter) drain() {
	for {
		w.mu.Lock()
		snap := w.pending
		w.pending = nil
		w.mu.Unlock()
		if snap == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := w.kv.Save(ctx, w.key, snap.data)
		cancel()
		w.metrics.Persist(documentName(w.key), err)

		if err != nil {
			w.logger.LogFields(context.Background(), slog.LevelError, "Failed to persist document", log.NewFields().
				WithOperation(log.OpPersist).
				WithError(err).
				With(log.FieldDocument, w.key).
				With(log.FieldVersion, snap.version))
		} else {
			w.logger.Debug("Document persisted", log.FieldDocument, w.key, log.FieldVersion, snap.version)
		}

		w.mu.Lock()
		w.attempted = snap.version
		if err == nil {
			w.durable = snap.version
		}
		w.lastErr = err
		w.signalLocked()
		w.mu.Unlock()

		if w.onProgress != nil {
			w.onProgress()
		}
	}
}

func (w *docWriter) signalLocked() {
	close(w.progress)
	w.progress = make(chan struct{})
}

// state returns submitted, attempted and durable versions.
func (w *docWriter) state() (uint64, uint64, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitted, w.attempted, w.durable
}

// wait blocks until version target has been attempted and returns whether it
// (or something newer) is durable, with the last write error.
func (w *docWriter) wait(ctx context.Context, target uint64) (bool, error) {
	for {
		w.mu.Lock()
		if w.attempted >= target {
			ok, err := w.durable >= target, w.lastErr
			w.mu.Unlock()
			return ok, err
		}
		ch := w.progress
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ch:
		}
	}
}

func documentName(key string) string {
	switch key {
	case storage.TransactionsKey:
		return "transactions"
	case storage.SettingsKey:
		return "settings"
	}
	return key
}
