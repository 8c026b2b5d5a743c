package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SessionState state of a trade controller.
type SessionState int

const (
	StateInit SessionState = iota
	StateWaitingBuy
	StateHolding
	StateWaitingSell
	StateComplete
	StateFailed
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWaitingBuy:
		return "waiting_buy"
	case StateHolding:
		return "holding"
	case StateWaitingSell:
		return "waiting_sell"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further ticks are processed in this state.
func (s SessionState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// SellSizing what anchors the size of the sell leg.
type SellSizing string

const (
	// SellSizingBudget sell with the same quote budget as the buy leg.
	SellSizingBudget SellSizing = "budget"
	// SellSizingBalance sell the whole free base-asset balance.
	SellSizingBalance SellSizing = "balance"
)

// ParseSellSizing accepts budget or balance. Empty input means budget.
func ParseSellSizing(s string) (SellSizing, error) {
	switch SellSizing(strings.ToLower(strings.TrimSpace(s))) {
	case "", SellSizingBudget:
		return SellSizingBudget, nil
	case SellSizingBalance:
		return SellSizingBalance, nil
	default:
		return "", NewValidationError("unknown sell sizing %q", s)
	}
}

// TradingSession parameters and fill state of one buy-then-sell round trip.
// Purchased and Sold are mutated only by the trade controller that owns the session.
type TradingSession struct {
	Platform         string
	Pair             Pair
	BuyPrice         decimal.Decimal
	SellPrice        decimal.Decimal
	AllowablePercent decimal.Decimal
	// Amount quote budget of the buy leg. Zero means the buy band lower bound.
	Amount     decimal.Decimal
	OrderKind  OrderKind
	SellSizing SellSizing

	Purchased bool
	Sold      bool
}

// Validate checks the session launch parameters.
func (s *TradingSession) Validate() error {
	if s.Pair.From == "" || s.Pair.To == "" {
		return NewValidationError("session pair is empty")
	}
	if !s.BuyPrice.GreaterThan(decimal.Zero) {
		return NewValidationError("buy price must be positive, got %s", s.BuyPrice.String())
	}
	if !s.SellPrice.GreaterThan(decimal.Zero) {
		return NewValidationError("sell price must be positive, got %s", s.SellPrice.String())
	}
	if !s.AllowablePercent.GreaterThan(decimal.Zero) || !s.AllowablePercent.LessThan(decimal.NewFromInt(1)) {
		return NewValidationError("allowable percent must be in (0, 1), got %s", s.AllowablePercent.String())
	}
	if s.Amount.IsNegative() {
		return NewValidationError("amount must not be negative, got %s", s.Amount.String())
	}

	return nil
}

// BuyBand fire interval of the buy leg.
func (s *TradingSession) BuyBand() Band {
	return NewBand(s.BuyPrice, s.AllowablePercent)
}

// SellBand fire interval of the sell leg.
func (s *TradingSession) SellBand() Band {
	return NewBand(s.SellPrice, s.AllowablePercent)
}

// SessionEvent state transition of a session, published for observers.
type SessionEvent struct {
	Time     time.Time `json:"ts"`
	Platform string    `json:"platform"`
	Pair     string    `json:"pair"`
	State    string    `json:"state"`
	Message  string    `json:"message,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
	Error    string    `json:"error,omitempty"`
}
