package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a platform price string in major units ("12.50") to a
// decimal. Empty or malformed input yields zero.
// Examples: "99.00" → 99, "1234.56" → 1234.56, "" → 0
func ParsePrice(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatPrice renders a decimal the way platform REST APIs expect it.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}
