package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbudget/internal/budget"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/sheets/memory"
	"smartbudget/internal/storage"
)

func tx(id string, amount int64) *core.Transaction {
	return &core.Transaction{
		ID:       id,
		Type:     core.Expense,
		Amount:   decimal.NewFromInt(amount),
		Category: core.Bills,
		Date:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHandleChangeRoutesEvents(t *testing.T) {
	ctx := context.Background()
	exp := memory.New()
	w := NewExportWorker(exp, log.Discard())

	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionAdded, Version: 1, TransactionID: "a", Transaction: tx("a", 10)}))
	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionAdded, Version: 2, TransactionID: "b", Transaction: tx("b", 20)}))
	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionUpdated, Version: 3, TransactionID: "a", Transaction: tx("a", 11)}))
	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventSettingsUpdated, Version: 4, Settings: &core.Settings{}}))
	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionDeleted, Version: 5, TransactionID: "b"}))

	assert.Equal(t, []string{"a"}, exp.IDs())
	assert.Equal(t, "11", exp.Rows()[0][5])
}

func TestHandleChangeSkipsStaleRedelivery(t *testing.T) {
	ctx := context.Background()
	exp := memory.New()
	w := NewExportWorker(exp, log.Discard())

	added := core.ChangeEvent{Kind: core.EventTransactionAdded, Version: 1, TransactionID: "a", Transaction: tx("a", 10)}
	require.NoError(t, w.HandleChange(ctx, added))
	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionDeleted, Version: 2, TransactionID: "a"}))
	require.NoError(t, w.HandleChange(ctx, added))

	assert.Empty(t, exp.IDs())
}

func TestHandleChangeSameVersionFromDifferentOrigins(t *testing.T) {
	ctx := context.Background()
	exp := memory.New()
	w := NewExportWorker(exp, log.Discard())

	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionAdded, Origin: "server", Version: 1, TransactionID: "a", Transaction: tx("a", 10)}))
	require.NoError(t, w.HandleChange(ctx, core.ChangeEvent{Kind: core.EventTransactionDeleted, Origin: "cli", Version: 1, TransactionID: "a"}))

	assert.Empty(t, exp.IDs())
}

func nextEvents(t *testing.T, events <-chan core.ChangeEvent, n int) []core.ChangeEvent {
	t.Helper()
	out := make([]core.ChangeEvent, 0, n)
	for range n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestExportFollowsEditsFromSuccessiveStores(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	exp := memory.New()
	w := NewExportWorker(exp, log.Discard())

	server := budget.NewStore(ctx, kv, budget.Options{Logger: log.Discard()})
	serverEvents, cancel := server.Subscribe(16)
	defer cancel()

	a, err := server.Add(ctx, core.TransactionDraft{Type: core.Expense, Amount: decimal.NewFromInt(10), Category: core.Food, Date: time.Now()})
	require.NoError(t, err)
	b, err := server.Add(ctx, core.TransactionDraft{Type: core.Expense, Amount: decimal.NewFromInt(20), Category: core.Bills, Date: time.Now()})
	require.NoError(t, err)
	for _, n := range []int64{11, 12, 13} {
		amount := decimal.NewFromInt(n)
		_, err := server.Update(ctx, a.ID, core.TransactionPatch{Amount: &amount})
		require.NoError(t, err)
	}
	fromServer := nextEvents(t, serverEvents, 5)
	for _, ev := range fromServer {
		require.NoError(t, w.HandleChange(ctx, ev))
	}
	require.NoError(t, server.Close(ctx))
	assert.ElementsMatch(t, []string{a.ID, b.ID}, exp.IDs())

	// a second process starts over the same document with its own counter
	cli := budget.NewStore(ctx, kv, budget.Options{Logger: log.Discard()})
	defer func() { _ = cli.Close(ctx) }()
	cliEvents, cancelCLI := cli.Subscribe(16)
	defer cancelCLI()

	amount := decimal.NewFromInt(21)
	found, err := cli.Update(ctx, b.ID, core.TransactionPatch{Amount: &amount})
	require.NoError(t, err)
	require.True(t, found)
	found, err = cli.Delete(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)

	fromCLI := nextEvents(t, cliEvents, 2)
	require.Equal(t, uint64(1), fromCLI[0].Version)
	require.NotEqual(t, fromServer[0].Origin, fromCLI[0].Origin)
	for _, ev := range fromCLI {
		require.NoError(t, w.HandleChange(ctx, ev))
	}
	assert.Equal(t, []string{b.ID}, exp.IDs())
	assert.Equal(t, "21", exp.Rows()[0][5])

	// redelivered server events stay stale
	require.NoError(t, w.HandleChange(ctx, fromServer[4]))
	assert.Equal(t, []string{b.ID}, exp.IDs())
}

func TestHandleChangeFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	exp := memory.New()
	w := NewExportWorker(exp, log.Discard())
	ev := core.ChangeEvent{Kind: core.EventTransactionAdded, Version: 1, TransactionID: "a", Transaction: tx("a", 10)}

	exp.FailWith(errors.New("rate limited"))
	require.Error(t, w.HandleChange(ctx, ev))

	exp.FailWith(nil)
	require.NoError(t, w.HandleChange(ctx, ev), "a failed event is not marked applied")
	assert.Equal(t, []string{"a"}, exp.IDs())
}

func TestHandleChangeRejectsIncompleteEvents(t *testing.T) {
	w := NewExportWorker(memory.New(), log.Discard())
	assert.Error(t, w.HandleChange(context.Background(), core.ChangeEvent{Kind: core.EventTransactionAdded, Version: 1, TransactionID: "a"}))
	assert.Error(t, w.HandleChange(context.Background(), core.ChangeEvent{Kind: "nope", Version: 1}))
}

func TestStartupSync(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	exp := memory.New()
	w := NewExportWorker(exp, log.Discard())

	require.NoError(t, exp.Upsert(ctx, *tx("stale", 1)))
	require.NoError(t, w.StartupSync(ctx, kv))
	assert.Empty(t, exp.IDs(), "missing document mirrors as empty")

	raw, err := storage.EncodeTransactions([]core.Transaction{*tx("x", 1), *tx("y", 2)}, time.Now())
	require.NoError(t, err)
	require.NoError(t, kv.Save(ctx, storage.TransactionsKey, raw))
	require.NoError(t, w.StartupSync(ctx, kv))
	assert.Equal(t, []string{"x", "y"}, exp.IDs())

	kv.Put(storage.TransactionsKey, []byte("garbage"))
	assert.Error(t, w.StartupSync(ctx, kv))
}
