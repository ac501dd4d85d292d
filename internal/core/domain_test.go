package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDraftValidate(t *testing.T) {
	date := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	good := TransactionDraft{
		Type:     Expense,
		Amount:   decimal.NewFromInt(40),
		Category: Food,
		Date:     date,
	}
	require.NoError(t, good.Validate())

	cases := []struct {
		name  string
		draft TransactionDraft
		want  error
	}{
		{"bad type", TransactionDraft{Type: "transfer", Amount: decimal.NewFromInt(1), Category: Food, Date: date}, ErrInvalidType},
		{"zero amount", TransactionDraft{Type: Expense, Amount: decimal.Zero, Category: Food, Date: date}, ErrInvalidAmount},
		{"negative amount", TransactionDraft{Type: Expense, Amount: decimal.NewFromInt(-5), Category: Food, Date: date}, ErrInvalidAmount},
		{"unknown category", TransactionDraft{Type: Expense, Amount: decimal.NewFromInt(1), Category: "pets", Date: date}, ErrInvalidCategory},
		{"missing date", TransactionDraft{Type: Income, Amount: decimal.NewFromInt(1), Category: Salary}, ErrMissingDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.draft.Validate(), tc.want)
		})
	}
}

func TestTransactionDraftValidateAcceptsMismatchedPairing(t *testing.T) {
	// Type/category pairing is deliberately not enforced.
	d := TransactionDraft{Type: Income, Amount: decimal.NewFromInt(10), Category: Food, Date: time.Now()}
	assert.NoError(t, d.Validate())
}

func TestWithDefaultDescription(t *testing.T) {
	d := TransactionDraft{Category: Transport, Description: "   "}.WithDefaultDescription()
	assert.Equal(t, "Transport", d.Description)

	d = TransactionDraft{Category: Transport, Description: " bus pass "}.WithDefaultDescription()
	assert.Equal(t, "bus pass", d.Description)
}

func TestCategoriesFor(t *testing.T) {
	assert.Equal(t, []Category{Salary, Business, Investment, Other}, CategoriesFor(Income))
	assert.Contains(t, CategoriesFor(Expense), Other)
	assert.NotContains(t, CategoriesFor(Expense), Salary)
	assert.Nil(t, CategoriesFor("bogus"))
}

func TestTransactionPatchApply(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := Transaction{
		ID:          "abc",
		Type:        Expense,
		Amount:      decimal.NewFromInt(10),
		Category:    Food,
		Description: "lunch",
		Date:        created,
		CreatedAt:   created,
	}
	amount := decimal.NewFromInt(25)
	got := TransactionPatch{Amount: &amount}.Apply(orig)

	assert.True(t, got.Amount.Equal(amount))
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
	assert.Equal(t, orig.Description, got.Description)
	assert.Equal(t, orig.Category, got.Category)
	assert.Equal(t, orig.Type, got.Type)
	assert.True(t, TransactionPatch{}.IsEmpty())
}

func TestTransactionPatchValidate(t *testing.T) {
	zero := decimal.Zero
	bad := Category("pets")
	assert.ErrorIs(t, TransactionPatch{Amount: &zero}.Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, TransactionPatch{Category: &bad}.Validate(), ErrInvalidCategory)
	assert.NoError(t, TransactionPatch{}.Validate())
}

func TestSettingsPatchApply(t *testing.T) {
	usd := "USD"
	got := SettingsPatch{Currency: &usd}.Apply(DefaultSettings())
	assert.Equal(t, Settings{Language: English, Currency: "USD", Notifications: true}, got)

	off := false
	ru := Russian
	got = SettingsPatch{Language: &ru, Notifications: &off}.Apply(got)
	assert.Equal(t, Settings{Language: Russian, Currency: "USD", Notifications: false}, got)
	assert.True(t, ru.IsValid())
	assert.False(t, Language("de").IsValid())
}
