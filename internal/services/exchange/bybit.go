package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/internal/services/quantity"
)

const (
	bybitName        = "bybit"
	bybitAccountType = "UNIFIED"
)

// Bybit V5 spot adapter.
type Bybit struct {
	client *bybit.Client
	lots   LotSizeResolver
	sizer  sizer
}

func NewBybit(client *bybit.Client, lots LotSizeResolver) *Bybit {
	if lots == nil {
		lots = DefaultLots
	}
	b := &Bybit{client: client, lots: lots}
	b.sizer = sizer{platform: bybitName, lots: lots, price: b.lastPrice, balance: b.GetBalance}

	return b
}

func (b *Bybit) Name() string { return bybitName }

func (b *Bybit) GetAccount(ctx context.Context) (domain.Account, error) {
	res, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5(bybitAccountType), nil)
	if err != nil {
		return domain.Account{}, domain.NewBackendError(bybitName, "account", "", err)
	}

	var balances []domain.AssetBalance
	if len(res.Result.List) > 0 {
		for _, coin := range res.Result.List[0].Coin {
			total := parseDecimal(coin.WalletBalance)
			locked := parseDecimal(coin.Locked)
			balances = append(balances, domain.AssetBalance{
				Asset:  string(coin.Coin),
				Free:   total.Sub(locked),
				Locked: locked,
			})
		}
	}

	return domain.Account{Platform: bybitName, Balances: balances, Raw: res.Result}, nil
}

func (b *Bybit) Buy(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideBuy
	return b.place(ctx, req, bybit.SideBuy)
}

func (b *Bybit) Sell(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideSell
	return b.place(ctx, req, bybit.SideSell)
}

func (b *Bybit) place(ctx context.Context, req domain.OrderRequest, side bybit.Side) (domain.OrderResult, error) {
	o, err := b.sizer.prepare(ctx, req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	linkID := o.req.ClientOrderID
	param := bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      bybit.SymbolV5(o.symbol),
		Side:        side,
		OrderType:   bybit.OrderTypeMarket,
		Qty:         o.quantity.String(),
		OrderLinkID: &linkID,
	}
	if o.req.Kind == domain.OrderKindLimit {
		price := o.price.String()
		tif := bybit.TimeInForceGoodTillCancel
		param.OrderType = bybit.OrderTypeLimit
		param.Price = &price
		param.TimeInForce = &tif
	}

	resp, err := b.client.V5().Order().CreateOrder(param)
	if err != nil {
		return domain.OrderResult{}, b.sizer.placeErr(o, err)
	}
	if resp == nil || resp.Result.OrderID == "" {
		return domain.OrderResult{}, nil
	}

	return domain.OrderResult{OrderID: resp.Result.OrderID, Quantity: o.quantity, Price: o.price}, nil
}

func (b *Bybit) GetOpenOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	param := bybit.V5GetOpenOrdersParam{Category: bybit.CategoryV5Spot, Symbol: &symbol}
	if limit > 0 {
		param.Limit = &limit
	}

	res, err := b.client.V5().Order().GetOpenOrders(param)
	if err != nil {
		return nil, domain.NewBackendError(bybitName, "open orders", pair.Symbol(), err)
	}

	orders := make([]domain.Order, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		orders = append(orders, bybitOrder(o.OrderID, string(o.Symbol), string(o.Side), string(o.OrderType),
			o.Price, o.Qty, o.CumExecQty, string(o.OrderStatus), o.CreatedTime))
	}

	return orders, nil
}

func (b *Bybit) GetAllOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	param := bybit.V5GetHistoryOrdersParam{Category: bybit.CategoryV5Spot, Symbol: &symbol}
	if limit > 0 {
		param.Limit = &limit
	}

	res, err := b.client.V5().Order().GetHistoryOrders(param)
	if err != nil {
		return nil, domain.NewBackendError(bybitName, "all orders", pair.Symbol(), err)
	}

	orders := make([]domain.Order, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		orders = append(orders, bybitOrder(o.OrderID, string(o.Symbol), string(o.Side), string(o.OrderType),
			o.Price, o.Qty, o.CumExecQty, string(o.OrderStatus), o.CreatedTime))
	}

	return orders, nil
}

func (b *Bybit) GetPrices(ctx context.Context) ([]domain.TickerPrice, error) {
	res, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{Category: bybit.CategoryV5Spot})
	if err != nil {
		return nil, domain.NewBackendError(bybitName, "prices", "", err)
	}
	if res.Result.Spot == nil {
		return nil, nil
	}

	prices := make([]domain.TickerPrice, 0, len(res.Result.Spot.List))
	for _, t := range res.Result.Spot.List {
		prices = append(prices, domain.TickerPrice{Symbol: string(t.Symbol), Price: parseDecimal(t.LastPrice)})
	}

	return prices, nil
}

func (b *Bybit) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	price, err := b.lastPrice(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	return price.Round(b.lots.Resolve(pair.Symbol()).Precision), nil
}

func (b *Bybit) lastPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Zero, domain.NewBackendError(bybitName, "price", pair.Symbol(), err)
	}
	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return decimal.Zero, domain.NewInsufficientDataError("bybit API returned empty prices for %s", pair.String())
	}

	price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse bybit price %q", result.Result.Spot.List[0].LastPrice)
	}

	return price, nil
}

func (b *Bybit) GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	res, err := b.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.SymbolInfo{}, domain.NewBackendError(bybitName, "instruments info", pair.Symbol(), err)
	}
	if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return domain.SymbolInfo{}, domain.NewInsufficientDataError("bybit has no symbol %s", pair.Symbol())
	}

	item := res.Result.Spot.List[0]
	step := parseDecimal(item.LotSizeFilter.BasePrecision)
	status := string(item.Status)

	return domain.SymbolInfo{
		Symbol:    string(item.Symbol),
		Base:      string(item.BaseCoin),
		Quote:     string(item.QuoteCoin),
		Status:    status,
		Tradeable: strings.EqualFold(status, "Trading"),
		TickSize:  parseDecimal(item.PriceFilter.TickSize),
		MinQty:    parseDecimal(item.LotSizeFilter.MinOrderQty),
		MaxQty:    parseDecimal(item.LotSizeFilter.MaxOrderQty),
		LotSize: domain.LotSize{
			Symbol:      string(item.Symbol),
			Precision:   quantity.StepPrecision(parseDecimal(item.PriceFilter.TickSize)),
			StepSize:    step,
			MinNotional: parseDecimal(item.LotSizeFilter.MinOrderAmt),
		},
	}, nil
}

func (b *Bybit) GetBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	res, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5(bybitAccountType), []bybit.Coin{bybit.Coin(coin)})
	if err != nil {
		return decimal.Zero, domain.NewBackendError(bybitName, "balance", coin, err)
	}
	if len(res.Result.List) > 0 {
		for _, c := range res.Result.List[0].Coin {
			if string(c.Coin) == coin {
				return parseDecimal(c.WalletBalance).Sub(parseDecimal(c.Locked)), nil
			}
		}
	}

	return decimal.Zero, domain.NewInsufficientDataError("coin %s not found in %s account", coin, bybitName)
}

func bybitOrder(id, symbol, side, kind, price, qty, executed, status, created string) domain.Order {
	var createdAt time.Time
	if ms, err := strconv.ParseInt(created, 10, 64); err == nil {
		createdAt = time.UnixMilli(ms)
	}

	return domain.Order{
		ID:        id,
		Symbol:    symbol,
		Side:      domain.Side(strings.ToLower(side)),
		Kind:      domain.OrderKind(strings.ToLower(kind)),
		Price:     parseDecimal(price),
		Quantity:  parseDecimal(qty),
		Executed:  parseDecimal(executed),
		Status:    status,
		CreatedAt: createdAt,
	}
}
