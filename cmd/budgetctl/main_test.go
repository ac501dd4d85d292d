package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"smartbudget/internal/core"
	"smartbudget/internal/storage"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "budget.db"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddThenListAcrossInvocations(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "--json", "add", "-t", "expense", "-a", "45000", "-c", "food", "--date", "2025-03-02")
	require.NoError(t, err)
	var tx core.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &tx))
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "Food", tx.Description)

	_, err = run(t, "add", "-t", "income", "-a", "1000000", "-c", "salary", "-d", "March pay", "--date", "2025-03-01")
	require.NoError(t, err)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "March pay")
	assert.Contains(t, out, tx.ID)

	out, err = run(t, "--json", "list", "--type", "income")
	require.NoError(t, err)
	var incomes []core.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &incomes))
	require.Len(t, incomes, 1)
	assert.Equal(t, core.Salary, incomes[0].Category)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "add", "-t", "expense", "-a", "-5", "-c", "food")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = run(t, "add", "-t", "expense", "-a", "5", "-c", "salary-ish")
	assert.ErrorIs(t, err, core.ErrInvalidCategory)

	_, err = run(t, "add", "-t", "expense", "-a", "5", "-c", "food", "--date", "03/02/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestUpdateAndDelete(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "--json", "add", "-t", "expense", "-a", "100", "-c", "bills", "--date", "2025-01-10")
	require.NoError(t, err)
	var tx core.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &tx))

	_, err = run(t, "update", tx.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")

	out, err = run(t, "update", tx.ID, "--amount", "250")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated "+tx.ID)

	out, err = run(t, "--json", "summary")
	require.NoError(t, err)
	var sum core.FinancialSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "250", sum.TotalExpense.String())

	out, err = run(t, "update", "missing", "--amount", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "No transaction missing")

	out, err = run(t, "delete", tx.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+tx.ID)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No transactions.")
}

func TestMonthFiltersByCalendarMonth(t *testing.T) {
	setupEnv(t)

	for _, date := range []string{"2025-02-28", "2025-03-01", "2025-03-31"} {
		_, err := run(t, "add", "-t", "expense", "-a", "1", "-c", "food", "-d", date, "--date", date)
		require.NoError(t, err)
	}

	out, err := run(t, "--json", "month", "2025", "3")
	require.NoError(t, err)
	var txs []core.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &txs))
	require.Len(t, txs, 2)

	_, err = run(t, "month", "2025", "13")
	require.Error(t, err)
}

func TestSettingsSetAndShow(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "UZS")

	_, err = run(t, "settings", "set", "--language", "fr")
	require.Error(t, err)

	_, err = run(t, "settings", "set", "--currency", "usd", "--notifications=false")
	require.NoError(t, err)

	out, err = run(t, "--json", "settings", "show")
	require.NoError(t, err)
	var s core.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "USD", s.Currency)
	assert.False(t, s.Notifications)
	assert.Equal(t, core.English, s.Language)
}

func TestToolListAndCall(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "tool")
	require.NoError(t, err)
	assert.Contains(t, out, "getFinancialSummary")
	assert.Contains(t, out, "getCategoryBreakdown")

	out, err = run(t, "tool", "getFinancialSummary")
	require.NoError(t, err)
	assert.Contains(t, out, `"savingsRate"`)

	_, err = run(t, "tool", "nope")
	require.Error(t, err)
}

func TestExportRequiresSpreadsheet(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_SPREADSHEET_ID")
}

func TestExportToWorkbook(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "add", "-t", "expense", "-a", "9.5", "-c", "transport", "--date", "2025-04-01")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "budget.xlsx")
	out, err := run(t, "export", "--xlsx", path, "--sheet", "April")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 transactions to "+path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("April")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Transport", rows[1][3])
	assert.Equal(t, "9.5", rows[1][5])
}

func TestRefusesBackendHeldByServer(t *testing.T) {
	setupEnv(t)

	kv, err := storage.NewSQLiteKV(os.Getenv("SQLITE_DB_PATH"))
	require.NoError(t, err)
	defer kv.Close()
	server := storage.NewLease(kv, "server-owner", "smartbudget", time.Minute)
	require.NoError(t, server.Acquire(context.Background()))

	_, err = run(t, "add", "-t", "expense", "-a", "5", "-c", "food")
	require.ErrorIs(t, err, storage.ErrLeaseHeld)
	assert.Contains(t, err.Error(), "smartbudget (pid")

	require.NoError(t, server.Release(context.Background()))
	_, err = run(t, "add", "-t", "expense", "-a", "5", "-c", "food")
	require.NoError(t, err)

	holder, err := server.Holder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "budgetctl", holder.Process)
	assert.False(t, holder.ExpiresAt.After(time.Now()), "budgetctl releases on exit")
}
