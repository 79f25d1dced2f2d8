// Package money converts between rupee amounts and the integer paise stored
// in the database and sent to the payment gateway.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToPaise converts a rupee amount into paise. Amounts with more than two
// decimal places are rejected rather than rounded.
func ToPaise(rupees decimal.Decimal) (int64, error) {
	shifted := rupees.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", rupees.String())
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s out of range", rupees.String())
	}
	return shifted.IntPart(), nil
}

// FromPaise converts paise into a rupee decimal.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Shift(-2)
}

// Format renders paise as a fixed two-decimal rupee string.
func Format(paise int64) string {
	return FromPaise(paise).StringFixed(2)
}
