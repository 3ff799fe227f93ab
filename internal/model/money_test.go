package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"whole number", "99.00", "99"},
		{"with cents", "123.45", "123.45"},
		{"zero", "0.00", "0"},
		{"empty string", "", "0"},
		{"padded", " 12.5 ", "12.5"},
		{"invalid string", "abc", "0"},
		{"negative (unusual)", "-10.00", "-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.input)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(decimal.RequireFromString("12.5")); got != "12.50" {
		t.Errorf("FormatPrice = %s, want 12.50", got)
	}
}
