// Package quantity converts a quote-currency budget into an order size that
// respects the symbol's lot step.
package quantity

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

// divisionPrecision digits kept by amount/price before the single step rounding.
const divisionPrecision = 64

// Calculate returns amount/price rounded half-to-even to the number of
// decimals implied by stepSize. A zero or integral step rounds to a whole number.
func Calculate(price, amount, stepSize decimal.Decimal) (decimal.Decimal, error) {
	if !price.GreaterThan(decimal.Zero) {
		return decimal.Zero, domain.NewValidationError("price must be positive, got %s", price.String())
	}
	if !amount.GreaterThan(decimal.Zero) {
		return decimal.Zero, domain.NewValidationError("amount must be positive, got %s", amount.String())
	}

	raw := amount.DivRound(price, divisionPrecision)

	return raw.RoundBank(StepPrecision(stepSize)), nil
}

// StepPrecision number of significant fractional digits of step, e.g. 0.001 -> 3.
func StepPrecision(step decimal.Decimal) int32 {
	if !step.GreaterThan(decimal.Zero) {
		return 0
	}

	s := step.String()
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}

	frac := strings.TrimRight(s[dot+1:], "0")

	return int32(len(frac))
}
