// Package core provides amount parsing and formatting utilities.
//
// Amounts are arbitrary precision decimals so that sums over many
// transactions never pick up floating point drift.
package core

import (
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a positive decimal amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Signs, exponents, grouping characters and zero are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s = strings.TrimSuffix(s, ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders the absolute amount without fraction digits, grouped
// by thousands and suffixed by the currency code, e.g. "1,250,000 UZS".
func FormatAmount(amount decimal.Decimal, currency string) string {
	whole := amount.Abs().Round(0).IntPart()
	out := humanize.Comma(whole)
	if currency = strings.TrimSpace(currency); currency != "" {
		out += " " + currency
	}
	return out
}
