package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a positive amount typed by a user.
//
// Both "1234.56" and the Brazilian "1.234,56" are accepted: when a comma is
// present it is the decimal separator and dots are thousands separators.
// Mixed forms such as "1,234.56" are rejected rather than guessed.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if intPart, frac, ok := strings.Cut(s, ","); ok {
		if strings.ContainsAny(frac, ".,") || !validGrouping(intPart) {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.ReplaceAll(intPart, ".", "") + "." + frac
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// validGrouping reports whether dots in s separate groups of three digits.
func validGrouping(s string) bool {
	groups := strings.Split(s, ".")
	for i, g := range groups[1:] {
		if len(g) != 3 || groups[i] == "" {
			return false
		}
	}
	return true
}

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
