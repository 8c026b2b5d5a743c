package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind how the order is matched.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// ParseOrderKind accepts market or limit, case-insensitive. Empty input means market.
func ParseOrderKind(s string) (OrderKind, error) {
	switch OrderKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderKindMarket:
		return OrderKindMarket, nil
	case OrderKindLimit:
		return OrderKindLimit, nil
	default:
		return "", NewValidationError("unknown order kind %q", s)
	}
}

// OrderRequest single order passed to an exchange adapter. Never mutated after construction.
type OrderRequest struct {
	Pair Pair
	Side Side
	Kind OrderKind
	// Amount budget in quote currency. The adapter derives the quantity from it.
	Amount decimal.Decimal
	// Quantity size in base asset. Takes precedence over Amount when positive.
	Quantity decimal.Decimal
	// LimitPrice used only for limit orders.
	LimitPrice    decimal.Decimal
	ClientOrderID string
}

// Validate checks that exactly one of Amount and Quantity is set.
func (r OrderRequest) Validate() error {
	if r.Pair.From == "" || r.Pair.To == "" {
		return NewValidationError("order pair is empty")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return NewValidationError("unknown order side %q", r.Side)
	}
	hasAmount := r.Amount.GreaterThan(decimal.Zero)
	hasQuantity := r.Quantity.GreaterThan(decimal.Zero)
	if hasAmount == hasQuantity {
		return NewValidationError("exactly one of amount (%s) and quantity (%s) must be positive",
			r.Amount.String(), r.Quantity.String())
	}
	if r.Kind == OrderKindLimit && !r.LimitPrice.GreaterThan(decimal.Zero) {
		return NewValidationError("limit order requires a positive price, got %s", r.LimitPrice.String())
	}

	return nil
}

// String returns a human-readable string representation.
func (r OrderRequest) String() string {
	return fmt.Sprintf("%s %s %s amount=%s qty=%s", r.Pair.String(), r.Side, r.Kind, r.Amount.String(), r.Quantity.String())
}

// OrderResult backend acknowledgement of a placed order.
type OrderResult struct {
	// OrderID backend-assigned identifier. Empty means the backend refused without an error.
	OrderID  string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Placed reports whether the backend acknowledged the order.
func (r OrderResult) Placed() bool {
	return r.OrderID != ""
}

// Order normalized view of an exchange order.
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Kind      OrderKind
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Executed  decimal.Decimal
	Status    string
	CreatedAt time.Time
}

// TickerPrice last traded price of a symbol.
type TickerPrice struct {
	Symbol string
	Price  decimal.Decimal
}
