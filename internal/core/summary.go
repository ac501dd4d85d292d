package core

import "github.com/shopspring/decimal"

// FinancialSummary holds totals derived from every transaction.
type FinancialSummary struct {
	TotalIncome  decimal.Decimal `json:"totalIncome"`
	TotalExpense decimal.Decimal `json:"totalExpense"`
	Balance      decimal.Decimal `json:"balance"`
	SavingsRate  float64         `json:"savingsRate"`
}

// CategorySummary aggregates the expense transactions of one category.
type CategorySummary struct {
	Category         Category        `json:"category"`
	Amount           decimal.Decimal `json:"amount"`
	Percentage       float64         `json:"percentage"`
	TransactionCount int             `json:"transactionCount"`
}
