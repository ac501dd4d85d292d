// Package assistant exposes read-only budget snapshots as named tools for an
// external AI assistant. Every tool returns a JSON document as a string,
// with amounts written as JSON numbers.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
)

const (
	ToolFinancialSummary  = "getFinancialSummary"
	ToolCategoryBreakdown = "getCategoryBreakdown"
)

// ErrUnknownTool is returned by Call for names not in the toolbox.
var ErrUnknownTool = errors.New("unknown tool")

// Snapshotter is the read-only view the tools work on. *budget.Store
// satisfies it.
type Snapshotter interface {
	Summary() core.FinancialSummary
	Breakdown() []core.CategorySummary
}

// Tool describes one callable tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type tool struct {
	Tool
	run func() any
}

type Toolbox struct {
	tools  map[string]tool
	logger *log.Logger
}

func NewToolbox(snap Snapshotter, logger *log.Logger) *Toolbox {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	tb := &Toolbox{
		tools:  make(map[string]tool),
		logger: logger.WithComponent(log.ComponentAssistant),
	}
	tb.register(ToolFinancialSummary,
		"Get current financial summary including balance, income, expense, and savings rate",
		func() any { return newSummaryView(snap.Summary()) })
	tb.register(ToolCategoryBreakdown,
		"Get spending breakdown by category",
		func() any { return newBreakdownView(snap.Breakdown()) })
	return tb
}

func (tb *Toolbox) register(name, description string, run func() any) {
	tb.tools[name] = tool{Tool: Tool{Name: name, Description: description}, run: run}
}

// Describe lists the tools sorted by name.
func (tb *Toolbox) Describe() []Tool {
	out := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		out = append(out, t.Tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs the named tool and returns its JSON output.
func (tb *Toolbox) Call(ctx context.Context, name string) (string, error) {
	t, ok := tb.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	out, err := json.Marshal(t.run())
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	tb.logger.DebugContext(ctx, "Tool called", log.FieldTool, name, "bytes", len(out))
	return string(out), nil
}

type summaryView struct {
	TotalIncome  json.Number `json:"totalIncome"`
	TotalExpense json.Number `json:"totalExpense"`
	Balance      json.Number `json:"balance"`
	SavingsRate  float64     `json:"savingsRate"`
}

func newSummaryView(s core.FinancialSummary) summaryView {
	return summaryView{
		TotalIncome:  json.Number(s.TotalIncome.String()),
		TotalExpense: json.Number(s.TotalExpense.String()),
		Balance:      json.Number(s.Balance.String()),
		SavingsRate:  s.SavingsRate,
	}
}

type categoryView struct {
	Category         core.Category `json:"category"`
	Amount           json.Number   `json:"amount"`
	Percentage       float64       `json:"percentage"`
	TransactionCount int           `json:"transactionCount"`
}

func newBreakdownView(b []core.CategorySummary) []categoryView {
	out := make([]categoryView, 0, len(b))
	for _, c := range b {
		out = append(out, categoryView{
			Category:         c.Category,
			Amount:           json.Number(c.Amount.String()),
			Percentage:       c.Percentage,
			TransactionCount: c.TransactionCount,
		})
	}
	return out
}
