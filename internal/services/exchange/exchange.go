// Package exchange adapts vendor SDKs to one spot trading contract.
package exchange

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/internal/services/quantity"
)

// Exchange uniform contract over every supported backend.
type Exchange interface {
	Name() string
	GetAccount(ctx context.Context) (domain.Account, error)
	Buy(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	Sell(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	GetOpenOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error)
	GetAllOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error)
	GetPrices(ctx context.Context) ([]domain.TickerPrice, error)
	// GetPrice last price of pair rounded to the symbol precision.
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error)
	// GetBalance free (non-locked) balance of coin.
	GetBalance(ctx context.Context, coin string) (decimal.Decimal, error)
}

// LotSizeResolver returns lot size metadata of a symbol, falling back to defaults.
type LotSizeResolver interface {
	Resolve(symbol string) domain.LotSize
}

type defaultLots struct{}

func (defaultLots) Resolve(symbol string) domain.LotSize { return domain.DefaultLotSize(symbol) }

// DefaultLots resolver used when no metadata store is configured.
var DefaultLots LotSizeResolver = defaultLots{}

// sizer turns an order request into a concrete base quantity for one backend.
type sizer struct {
	platform string
	lots     LotSizeResolver
	price    func(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	balance  func(ctx context.Context, coin string) (decimal.Decimal, error)
}

// order is a sized request ready for the vendor call.
type order struct {
	req      domain.OrderRequest
	symbol   string
	quantity decimal.Decimal
	price    decimal.Decimal
	lot      domain.LotSize
}

// prepare validates req, derives the quantity from the amount when needed and
// checks min notional and, for sells, the free base balance. No order is sent here.
func (s sizer) prepare(ctx context.Context, req domain.OrderRequest) (order, error) {
	if err := req.Validate(); err != nil {
		return order{}, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.New().String()
	}

	symbol := req.Pair.Symbol()
	lot := s.lots.Resolve(symbol)

	price := decimal.Zero
	if req.Kind == domain.OrderKindLimit {
		price = req.LimitPrice.Round(lot.Precision)
	}

	needPrice := req.Quantity.IsZero() || lot.MinNotional.GreaterThan(decimal.Zero)
	if needPrice && price.IsZero() {
		p, err := s.price(ctx, req.Pair)
		if err != nil {
			return order{}, s.wrap(req, "price", decimal.Zero, err)
		}
		price = p.Round(lot.Precision)
	}

	var qty decimal.Decimal
	if req.Quantity.GreaterThan(decimal.Zero) {
		qty = req.Quantity
		if lot.StepSize.GreaterThan(decimal.Zero) {
			qty = qty.RoundFloor(quantity.StepPrecision(lot.StepSize))
		}
	} else {
		var err error
		qty, err = quantity.Calculate(price, req.Amount, lot.StepSize)
		if err != nil {
			return order{}, err
		}
	}

	if !qty.GreaterThan(decimal.Zero) {
		return order{}, domain.NewValidationError("%s quantity for %s rounds to zero", req.Side, symbol)
	}
	if lot.MinNotional.GreaterThan(decimal.Zero) && qty.Mul(price).LessThan(lot.MinNotional) {
		return order{}, domain.NewValidationError("%s notional %s below min notional %s for %s",
			req.Side, qty.Mul(price).String(), lot.MinNotional.String(), symbol)
	}

	if req.Side == domain.SideSell {
		free, err := s.balance(ctx, req.Pair.From)
		if err != nil {
			return order{}, s.wrap(req, "balance", qty, err)
		}
		if !free.GreaterThan(decimal.Zero) {
			return order{}, domain.NewInsufficientDataError("balance not enough to sell %s: no free %s", qty.String(), req.Pair.From)
		}
		if free.LessThan(qty) {
			return order{}, domain.NewInsufficientDataError("balance not enough to sell %s: free %s %s", qty.String(), free.String(), req.Pair.From)
		}
	}

	return order{req: req, symbol: symbol, quantity: qty, price: price, lot: lot}, nil
}

// wrap classifies err as a backend failure of op unless it already carries a kind.
func (s sizer) wrap(req domain.OrderRequest, op string, qty decimal.Decimal, err error) error {
	if domain.IsClassified(err) {
		return err
	}

	return &domain.BackendError{
		Platform: s.platform,
		Op:       op,
		Symbol:   req.Pair.Symbol(),
		Side:     req.Side,
		Quantity: qty,
		Err:      err,
	}
}

// placeErr wraps a failed vendor order call.
func (s sizer) placeErr(o order, err error) error {
	return s.wrap(o.req, string(o.req.Side), o.quantity, err)
}

func limitOrders(orders []domain.Order, limit int) []domain.Order {
	if limit > 0 && len(orders) > limit {
		return orders[len(orders)-limit:]
	}

	return orders
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}

	return d
}
