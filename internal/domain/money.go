package domain

import "github.com/shopspring/decimal"

// AmountPlaces is the currency precision used for every stored amount.
const AmountPlaces = 2

// ValidAmount reports whether a is positive and carries no more than two
// decimal places.
func ValidAmount(a decimal.Decimal) bool {
	if !a.IsPositive() {
		return false
	}
	return a.Equal(a.Round(AmountPlaces))
}

// FormatAmount renders a with exactly two decimal places.
func FormatAmount(a decimal.Decimal) string {
	return a.StringFixed(AmountPlaces)
}
