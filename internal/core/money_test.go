package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{".5", "0.5", true},
		{"12.", "12", true},
		{" 250000 ", "250000", true},
		{"0.001", "0.001", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"1e5", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1 000", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.out)), "input %q got %s", tc.in, got)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1,250,000 UZS", FormatAmount(decimal.NewFromInt(1250000), "UZS"))
	assert.Equal(t, "40 USD", FormatAmount(decimal.NewFromInt(-40), "USD"))
	assert.Equal(t, "13", FormatAmount(decimal.RequireFromString("12.5"), ""))
	assert.Equal(t, "0 EUR", FormatAmount(decimal.Zero, " EUR "))
}
