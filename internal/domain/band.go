package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Band inclusive price interval around an anchor price.
type Band struct {
	Lower decimal.Decimal
	Upper decimal.Decimal
}

// NewBand widens center by pct (a fraction of the price) on both sides.
func NewBand(center, pct decimal.Decimal) Band {
	delta := center.Mul(pct)
	return Band{
		Lower: center.Sub(delta),
		Upper: center.Add(delta),
	}
}

// Contains reports whether price lies within the band, bounds included.
func (b Band) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(b.Lower) && price.LessThanOrEqual(b.Upper)
}

// String returns the string representation.
func (b Band) String() string {
	return fmt.Sprintf("[%s, %s]", b.Lower.String(), b.Upper.String())
}
