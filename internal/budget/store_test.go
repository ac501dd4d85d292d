package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbudget/internal/analytics"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
	"smartbudget/internal/storage"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("tx-%03d", n)
	}
}

func newTestStore(t *testing.T, kv storage.KV) *Store {
	t.Helper()
	c := &clock{now: baseTime}
	s := NewStore(context.Background(), kv, Options{
		Logger:  log.Discard(),
		Metrics: metrics.New(),
		Now:     c.Now,
		IDFunc:  sequentialIDs(),
	})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func draft(typ core.TransactionType, amount int64, cat core.Category) core.TransactionDraft {
	return core.TransactionDraft{
		Type:        typ,
		Amount:      decimal.NewFromInt(amount),
		Category:    cat,
		Description: cat.Label(),
		Date:        baseTime,
	}
}

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func TestAddIsRetrievableAndPrepends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryKV())

	var ids []string
	for i := 1; i <= 5; i++ {
		tx, err := s.Add(ctx, draft(core.Expense, int64(i), core.Food))
		require.NoError(t, err)
		assert.NotEmpty(t, tx.ID)
		assert.False(t, tx.CreatedAt.IsZero())
		ids = append(ids, tx.ID)
	}

	txs := s.Transactions()
	require.Len(t, txs, 5)
	assert.Equal(t, ids[4], txs[0].ID, "newest first")
	for _, id := range ids {
		got, ok := s.Transaction(id)
		assert.True(t, ok)
		assert.Equal(t, id, got.ID)
	}
	assert.Equal(t, uint64(5), s.Version())
}

func TestAddDefaultIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, storage.NewMemoryKV(), Options{Logger: log.Discard()})
	defer s.Close(ctx)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tx, err := s.Add(ctx, draft(core.Income, 1, core.Salary))
		require.NoError(t, err)
		require.False(t, seen[tx.ID], "duplicate id %s", tx.ID)
		seen[tx.ID] = true
	}
}

func TestDeleteRemoves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryKV())

	a, _ := s.Add(ctx, draft(core.Expense, 10, core.Food))
	b, _ := s.Add(ctx, draft(core.Expense, 20, core.Bills))

	found, err := s.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, found)

	_, ok := s.Transaction(a.ID)
	assert.False(t, ok)
	txs := s.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, b.ID, txs[0].ID)
}

func TestUpdateChangesOnlyPatchedFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryKV())

	orig, _ := s.Add(ctx, draft(core.Expense, 10, core.Food))
	amount := decimal.NewFromInt(99)
	found, err := s.Update(ctx, orig.ID, core.TransactionPatch{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, found)

	got, ok := s.Transaction(orig.ID)
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(amount))
	assert.Equal(t, orig.ID, got.ID)
	assert.True(t, orig.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, orig.Type, got.Type)
	assert.Equal(t, orig.Category, got.Category)
	assert.Equal(t, orig.Description, got.Description)
	assert.True(t, orig.Date.Equal(got.Date))
}

func TestUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(t, kv)

	_, _ = s.Add(ctx, draft(core.Expense, 10, core.Food))
	flush(t, s)
	before := s.Transactions()
	version := s.Version()
	saves := kv.SaveCount(storage.TransactionsKey)

	amount := decimal.NewFromInt(1)
	found, err := s.Update(ctx, "missing", core.TransactionPatch{Amount: &amount})
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	flush(t, s)
	assert.Equal(t, before, s.Transactions())
	assert.Equal(t, version, s.Version())
	assert.Equal(t, saves, kv.SaveCount(storage.TransactionsKey))
}

func TestSummaryAndBreakdown(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryKV())

	empty := s.Summary()
	assert.True(t, empty.TotalIncome.IsZero())
	assert.Equal(t, 0.0, empty.SavingsRate)
	assert.Empty(t, s.Breakdown())

	_, _ = s.Add(ctx, draft(core.Income, 100, core.Salary))
	_, _ = s.Add(ctx, draft(core.Expense, 40, core.Food))

	sum := s.Summary()
	assert.True(t, sum.TotalIncome.Equal(decimal.NewFromInt(100)))
	assert.True(t, sum.TotalExpense.Equal(decimal.NewFromInt(40)))
	assert.True(t, sum.Balance.Equal(decimal.NewFromInt(60)))
	assert.InDelta(t, 60.0, sum.SavingsRate, 1e-9)

	// Memoized value is refreshed after a mutation.
	_, _ = s.Add(ctx, draft(core.Expense, 60, core.Transport))
	sum = s.Summary()
	assert.True(t, sum.Balance.IsZero())

	breakdown := s.Breakdown()
	require.Len(t, breakdown, 2)
	assert.Equal(t, core.Transport, breakdown[0].Category)
	assert.InDelta(t, 60.0, breakdown[0].Percentage, 1e-9)
}

func TestFilterAndMonth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryKV())

	march := draft(core.Income, 1, core.Salary)
	april := draft(core.Expense, 2, core.Food)
	april.Date = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	_, _ = s.Add(ctx, march)
	_, _ = s.Add(ctx, april)
	_, _ = s.Add(ctx, draft(core.Income, 3, core.Business))

	incomes := s.Filter(analytics.Query{Type: core.Income})
	require.Len(t, incomes, 2)
	assert.True(t, incomes[0].Amount.Equal(decimal.NewFromInt(3)))

	limited := s.Filter(analytics.Query{Type: core.Income, Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, incomes[0].ID, limited[0].ID)

	assert.Len(t, s.TransactionsByMonth(2025, time.March), 2)
	assert.Len(t, s.TransactionsByMonth(2025, time.April), 1)
	// cached view is invalidated by the next mutation
	_, _ = s.Add(ctx, april)
	assert.Len(t, s.TransactionsByMonth(2025, time.April), 2)
	assert.Empty(t, s.TransactionsByMonth(2025, time.Month(13)))
}

func TestSettingsDefaultsAndPartialUpdate(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(t, kv)

	assert.Equal(t, core.DefaultSettings(), s.Settings())

	usd := "USD"
	got, err := s.UpdateSettings(ctx, core.SettingsPatch{Currency: &usd})
	require.NoError(t, err)
	assert.Equal(t, core.Settings{Language: core.English, Currency: "USD", Notifications: true}, got)
	flush(t, s)

	reopened := newTestStore(t, kv)
	assert.Equal(t, got, reopened.Settings())
}

func TestPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(t, kv)

	_, _ = s.Add(ctx, draft(core.Income, 2500, core.Salary))
	_, _ = s.Add(ctx, core.TransactionDraft{
		Type:        core.Expense,
		Amount:      decimal.RequireFromString("12.50"),
		Category:    core.Food,
		Description: "Lunch",
		Date:        time.Date(2025, 3, 9, 13, 15, 0, 0, time.UTC),
	})
	flush(t, s)
	want := s.Transactions()

	got := newTestStore(t, kv).Transactions()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.True(t, want[i].Amount.Equal(got[i].Amount))
		assert.Equal(t, want[i].Category, got[i].Category)
		assert.Equal(t, want[i].Description, got[i].Description)
		assert.True(t, want[i].Date.Equal(got[i].Date))
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func TestUnreadableDocumentsFallBackToDefaults(t *testing.T) {
	kv := storage.NewMemoryKV()
	kv.Put(storage.TransactionsKey, []byte(`{"schemaVersion":1,"data":"nope"}`))
	kv.Put(storage.SettingsKey, []byte(`not json`))

	s := newTestStore(t, kv)
	assert.Empty(t, s.Transactions())
	assert.Equal(t, core.DefaultSettings(), s.Settings())

	failing := storage.NewMemoryKV()
	failing.FailLoads(errors.New("io error"))
	s = newTestStore(t, failing)
	assert.Empty(t, s.Transactions())
	assert.Equal(t, core.DefaultSettings(), s.Settings())
}

func TestPersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(t, kv)

	kv.FailSaves(errors.New("disk full"))
	tx, err := s.Add(ctx, draft(core.Expense, 10, core.Food))
	require.NoError(t, err)

	_, ok := s.Transaction(tx.ID)
	assert.True(t, ok)

	err = s.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDurable)

	v := s.Versions()
	assert.Equal(t, uint64(1), v.Current)
	assert.Equal(t, uint64(1), v.Attempted)
	assert.Equal(t, uint64(0), v.Durable)
	assert.Equal(t, uint64(1), v.Lag())

	// The next successful write carries the full collection.
	kv.FailSaves(nil)
	_, err = s.Add(ctx, draft(core.Expense, 20, core.Bills))
	require.NoError(t, err)
	flush(t, s)
	assert.Equal(t, uint64(0), s.Versions().Lag())

	raw, err := kv.Load(ctx, storage.TransactionsKey)
	require.NoError(t, err)
	txs, err := storage.DecodeTransactions(raw)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(t, kv)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, draft(core.Expense, 1, core.Other))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	flush(t, s)

	assert.Len(t, s.Transactions(), 50)
	assert.Len(t, newTestStore(t, kv).Transactions(), 50)
	// Writes coalesce, so there are at most as many saves as mutations.
	assert.LessOrEqual(t, kv.SaveCount(storage.TransactionsKey), 50)
}

func TestCloseRejectsMutations(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(t, kv)

	_, _ = s.Add(ctx, draft(core.Expense, 10, core.Food))
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, kv.SaveCount(storage.TransactionsKey))

	_, err := s.Add(ctx, draft(core.Expense, 10, core.Food))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Delete(ctx, "x")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.UpdateSettings(ctx, core.SettingsPatch{})
	assert.ErrorIs(t, err, ErrStoreClosed)

	// Reads still work and Close is idempotent.
	assert.Len(t, s.Transactions(), 1)
	assert.NoError(t, s.Close(ctx))
}
