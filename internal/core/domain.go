package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Food          Category = "food"
	Transport     Category = "transport"
	Entertainment Category = "entertainment"
	Shopping      Category = "shopping"
	Bills         Category = "bills"
	Health        Category = "health"
	Education     Category = "education"
	Salary        Category = "salary"
	Business      Category = "business"
	Investment    Category = "investment"
	Other         Category = "other"
)

type (
	TransactionType string

	Category string

	// Transaction is one money movement. Amount is currency-agnostic; the
	// display currency lives in Settings.
	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
		Date        time.Time       `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
	}

	// TransactionDraft is a transaction before the store assigns ID and CreatedAt.
	TransactionDraft struct {
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
		Date        time.Time       `json:"date"`
	}

	// TransactionPatch carries the fields of a partial update. Nil fields are
	// left untouched.
	TransactionPatch struct {
		Type        *TransactionType `json:"type,omitempty"`
		Amount      *decimal.Decimal `json:"amount,omitempty"`
		Category    *Category        `json:"category,omitempty"`
		Description *string          `json:"description,omitempty"`
		Date        *time.Time       `json:"date,omitempty"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCategory = errors.New("invalid category")
	ErrMissingDate     = errors.New("missing date")
)

var (
	incomeCategories  = []Category{Salary, Business, Investment, Other}
	expenseCategories = []Category{Food, Transport, Entertainment, Shopping, Bills, Health, Education, Other}

	categoryLabels = map[Category]string{
		Food:          "Food",
		Transport:     "Transport",
		Entertainment: "Entertainment",
		Shopping:      "Shopping",
		Bills:         "Bills",
		Health:        "Health",
		Education:     "Education",
		Salary:        "Salary",
		Business:      "Business",
		Investment:    "Investment",
		Other:         "Other",
	}
)

// IsValid reports whether t is income or expense.
func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// IsValid reports whether c belongs to the fixed category enumeration.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable name used when a description is left empty.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// CategoriesFor returns the categories offered for a transaction type.
func CategoriesFor(t TransactionType) []Category {
	switch t {
	case Income:
		return append([]Category(nil), incomeCategories...)
	case Expense:
		return append([]Category(nil), expenseCategories...)
	default:
		return nil
	}
}

// Validate checks what the UI layer checks before a draft reaches the store.
// The store itself never calls it.
func (d TransactionDraft) Validate() error {
	if !d.Type.IsValid() {
		return ErrInvalidType
	}
	if !d.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !d.Category.IsValid() {
		return ErrInvalidCategory
	}
	if d.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// WithDefaultDescription substitutes the category label for an empty description.
func (d TransactionDraft) WithDefaultDescription() TransactionDraft {
	d.Description = strings.TrimSpace(d.Description)
	if d.Description == "" {
		d.Description = d.Category.Label()
	}
	return d
}

// Validate checks the fields present in the patch.
func (p TransactionPatch) Validate() error {
	if p.Type != nil && !p.Type.IsValid() {
		return ErrInvalidType
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.Category != nil && !p.Category.IsValid() {
		return ErrInvalidCategory
	}
	if p.Date != nil && p.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Type == nil && p.Amount == nil && p.Category == nil && p.Description == nil && p.Date == nil
}

// Apply merges the patch over t. ID and CreatedAt are never touched.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}
