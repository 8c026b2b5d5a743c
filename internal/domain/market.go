package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick one best bid/ask update from the live feed.
type PriceTick struct {
	Ask  decimal.Decimal
	Bid  decimal.Decimal
	Time time.Time
}

// Validate rejects ticks with missing or non-positive prices.
func (t PriceTick) Validate() error {
	if !t.Ask.GreaterThan(decimal.Zero) || !t.Bid.GreaterThan(decimal.Zero) {
		return NewValidationError("malformed tick ask=%s bid=%s", t.Ask.String(), t.Bid.String())
	}

	return nil
}

// DefaultPrecision decimal digits used when a symbol has no stored metadata.
const DefaultPrecision = 8

// LotSize quantity and price granularity of a symbol.
type LotSize struct {
	Symbol      string          `json:"symbol"`
	Precision   int32           `json:"precision"`
	StepSize    decimal.Decimal `json:"step_size"`
	MinNotional decimal.Decimal `json:"min_notional"`
}

// DefaultLotSize fallback for symbols without stored metadata.
func DefaultLotSize(symbol string) LotSize {
	return LotSize{
		Symbol:      symbol,
		Precision:   DefaultPrecision,
		StepSize:    decimal.Zero,
		MinNotional: decimal.Zero,
	}
}

// SymbolInfo exchange metadata of a trading symbol.
type SymbolInfo struct {
	Symbol    string
	Base      string
	Quote     string
	Status    string
	LotSize   LotSize
	TickSize  decimal.Decimal
	MinQty    decimal.Decimal
	MaxQty    decimal.Decimal
	Tradeable bool
}

// AssetBalance balance of a single asset.
type AssetBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Account backend-specific account handle. Raw holds the vendor object and is opaque to callers.
type Account struct {
	Platform string
	Balances []AssetBalance
	Raw      any
}

// Balance returns the balance of asset, if present.
func (a Account) Balance(asset string) (AssetBalance, bool) {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b, true
		}
	}

	return AssetBalance{}, false
}
