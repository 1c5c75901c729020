package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the exponent of one minor unit (cents)
const minorUnitExp = -2

// FormatAmount renders minor units as a fixed two-decimal major-unit string
func FormatAmount(cents int64) string {
	return decimal.New(cents, minorUnitExp).StringFixed(2)
}

// AmountDecimal converts minor units to a decimal in major units
func AmountDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, minorUnitExp)
}

// ParseAmount converts a major-unit string such as "-50.00" to minor units.
// Values with sub-cent precision are rejected rather than rounded.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	cents := d.Shift(-minorUnitExp)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	return cents.IntPart(), nil
}
