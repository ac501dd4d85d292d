package memory

import (
	"context"
	"sync"

	"smartbudget/internal/core"
	"smartbudget/internal/sheets"
)

// Exporter mirrors rows in memory. Used by tests and when no spreadsheet is
// configured.
type Exporter struct {
	mu   sync.Mutex
	rows [][]string
	fail error
}

var _ sheets.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Upsert(_ context.Context, tx core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	row := sheets.Row(tx)
	if i := e.indexLocked(tx.ID); i >= 0 {
		e.rows[i] = row
		return nil
	}
	e.rows = append(e.rows, row)
	return nil
}

func (e *Exporter) Remove(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	if i := e.indexLocked(id); i >= 0 {
		e.rows = append(e.rows[:i], e.rows[i+1:]...)
	}
	return nil
}

func (e *Exporter) Replace(_ context.Context, txs []core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.rows = make([][]string, 0, len(txs))
	for _, tx := range txs {
		e.rows = append(e.rows, sheets.Row(tx))
	}
	return nil
}

// Rows returns a copy of the exported rows without the header.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// IDs returns the id column.
func (e *Exporter) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.rows))
	for i, r := range e.rows {
		ids[i] = r[0]
	}
	return ids
}

// FailWith makes every call return err until reset with nil.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

func (e *Exporter) indexLocked(id string) int {
	for i, r := range e.rows {
		if r[0] == id {
			return i
		}
	}
	return -1
}
