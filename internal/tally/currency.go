package tally

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CAD = "CAD"
	CNY = "CNY"
)

// cadToCNY is the fixed rate used for history views; live rates are not fetched.
var cadToCNY = decimal.RequireFromString("5.2")

// NormalizeCurrency upper-cases a code and folds RMB into CNY.
func NormalizeCurrency(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "RMB" {
		return CNY
	}
	return c
}

// Convert moves amount between CAD and CNY. Any other pair is returned unchanged.
func Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	switch {
	case from == to:
		return amount
	case from == CAD && to == CNY:
		return amount.Mul(cadToCNY).Round(2)
	case from == CNY && to == CAD:
		return amount.Div(cadToCNY).Round(2)
	default:
		return amount
	}
}
