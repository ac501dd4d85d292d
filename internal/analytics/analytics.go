// Package analytics derives summaries, category breakdowns and filtered views
// from a transaction sequence. Every function is pure and total: it never
// fails and never mutates its input.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"smartbudget/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Summarize computes income and expense totals, balance and savings rate.
func Summarize(txs []core.Transaction) core.FinancialSummary {
	income := decimal.Zero
	expense := decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}

	balance := income.Sub(expense)
	return core.FinancialSummary{
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      balance,
		SavingsRate:  percentOf(balance, income),
	}
}

// Breakdown groups expense transactions by category. The result is sorted by
// amount descending; equal amounts keep the order in which their category was
// first encountered in txs.
func Breakdown(txs []core.Transaction) []core.CategorySummary {
	total := decimal.Zero
	index := make(map[core.Category]int)
	var out []core.CategorySummary

	for _, t := range txs {
		if t.Type != core.Expense {
			continue
		}
		total = total.Add(t.Amount)
		i, ok := index[t.Category]
		if !ok {
			i = len(out)
			index[t.Category] = i
			out = append(out, core.CategorySummary{Category: t.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
		out[i].TransactionCount++
	}

	for i := range out {
		out[i].Percentage = percentOf(out[i].Amount, total)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Amount.GreaterThan(out[b].Amount)
	})
	if out == nil {
		return []core.CategorySummary{}
	}
	return out
}

// TopCategory returns the largest expense category, if any.
func TopCategory(breakdown []core.CategorySummary) (core.CategorySummary, bool) {
	if len(breakdown) == 0 {
		return core.CategorySummary{}, false
	}
	return breakdown[0], true
}

// percentOf returns part/whole*100, or 0 when whole is not positive.
func percentOf(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Mul(hundred).Div(whole).InexactFloat64()
}

// Query selects a view of the sequence. Zero values disable a filter.
type Query struct {
	Type     core.TransactionType
	Category core.Category
	Limit    int
}

// Filter applies the type filter, then the category filter, then keeps the
// first Limit entries. Relative order is preserved.
func Filter(txs []core.Transaction, q Query) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if q.Type != "" && t.Type != q.Type {
			continue
		}
		if q.Category != "" && t.Category != q.Category {
			continue
		}
		out = append(out, t)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// ByMonth keeps transactions whose Date falls in the given calendar month
// when interpreted in loc. A nil loc means time.Local.
func ByMonth(txs []core.Transaction, year int, month time.Month, loc *time.Location) []core.Transaction {
	if loc == nil {
		loc = time.Local
	}
	out := make([]core.Transaction, 0)
	if month < time.January || month > time.December {
		return out
	}
	for _, t := range txs {
		d := t.Date.In(loc)
		if d.Year() == year && d.Month() == month {
			out = append(out, t)
		}
	}
	return out
}
