package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

const binanceName = "binance"

// Binance spot adapter.
type Binance struct {
	client *binance.Client
	lots   LotSizeResolver
	sizer  sizer
}

func NewBinance(client *binance.Client, lots LotSizeResolver) *Binance {
	if lots == nil {
		lots = DefaultLots
	}
	b := &Binance{client: client, lots: lots}
	b.sizer = sizer{platform: binanceName, lots: lots, price: b.lastPrice, balance: b.GetBalance}

	return b
}

func (b *Binance) Name() string { return binanceName }

func (b *Binance) GetAccount(ctx context.Context) (domain.Account, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.Account{}, domain.NewBackendError(binanceName, "account", "", err)
	}

	balances := make([]domain.AssetBalance, 0, len(account.Balances))
	for _, bal := range account.Balances {
		balances = append(balances, domain.AssetBalance{
			Asset:  bal.Asset,
			Free:   parseDecimal(bal.Free),
			Locked: parseDecimal(bal.Locked),
		})
	}

	return domain.Account{Platform: binanceName, Balances: balances, Raw: account}, nil
}

func (b *Binance) Buy(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideBuy
	return b.place(ctx, req, binance.SideTypeBuy)
}

func (b *Binance) Sell(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideSell
	return b.place(ctx, req, binance.SideTypeSell)
}

func (b *Binance) place(ctx context.Context, req domain.OrderRequest, side binance.SideType) (domain.OrderResult, error) {
	o, err := b.sizer.prepare(ctx, req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	svc := b.client.NewCreateOrderService().Symbol(o.symbol).
		Side(side).
		Quantity(o.quantity.String()).
		NewClientOrderID(o.req.ClientOrderID)

	if o.req.Kind == domain.OrderKindLimit {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(o.price.String())
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, b.sizer.placeErr(o, err)
	}
	if resp == nil || resp.OrderID == 0 {
		return domain.OrderResult{}, nil
	}

	return domain.OrderResult{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Quantity: o.quantity,
		Price:    o.price,
	}, nil
}

func (b *Binance) GetOpenOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return nil, domain.NewBackendError(binanceName, "open orders", pair.Symbol(), err)
	}

	return limitOrders(convertBinanceOrders(orders), limit), nil
}

func (b *Binance) GetAllOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error) {
	svc := b.client.NewListOrdersService().Symbol(pair.Symbol())
	if limit > 0 {
		svc = svc.Limit(limit)
	}

	orders, err := svc.Do(ctx)
	if err != nil {
		return nil, domain.NewBackendError(binanceName, "all orders", pair.Symbol(), err)
	}

	return convertBinanceOrders(orders), nil
}

func (b *Binance) GetPrices(ctx context.Context) ([]domain.TickerPrice, error) {
	prices, err := b.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, domain.NewBackendError(binanceName, "prices", "", err)
	}

	res := make([]domain.TickerPrice, 0, len(prices))
	for _, p := range prices {
		res = append(res, domain.TickerPrice{Symbol: p.Symbol, Price: parseDecimal(p.Price)})
	}

	return res, nil
}

func (b *Binance) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	price, err := b.lastPrice(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	return price.Round(b.lots.Resolve(pair.Symbol()).Precision), nil
}

func (b *Binance) lastPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, domain.NewBackendError(binanceName, "price", pair.Symbol(), err)
	}
	if len(prices) == 0 {
		return decimal.Zero, domain.NewInsufficientDataError("binance API returned empty prices for %s", pair.String())
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse binance price %q", prices[0].Price)
	}

	return price, nil
}

func (b *Binance) GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error) {
	info, err := b.client.NewExchangeInfoService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return domain.SymbolInfo{}, domain.NewBackendError(binanceName, "exchange info", pair.Symbol(), err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != pair.Symbol() {
			continue
		}

		res := domain.SymbolInfo{
			Symbol:    s.Symbol,
			Base:      s.BaseAsset,
			Quote:     s.QuoteAsset,
			Status:    s.Status,
			Tradeable: s.Status == "TRADING",
			LotSize: domain.LotSize{
				Symbol:    s.Symbol,
				Precision: int32(s.BaseAssetPrecision),
				StepSize:  decimal.Zero,
			},
		}
		if lot := s.LotSizeFilter(); lot != nil {
			res.LotSize.StepSize = parseDecimal(lot.StepSize)
			res.MinQty = parseDecimal(lot.MinQuantity)
			res.MaxQty = parseDecimal(lot.MaxQuantity)
		}
		if pf := s.PriceFilter(); pf != nil {
			res.TickSize = parseDecimal(pf.TickSize)
		}
		res.LotSize.MinNotional = binanceMinNotional(s.Filters)

		return res, nil
	}

	return domain.SymbolInfo{}, domain.NewInsufficientDataError("binance has no symbol %s", pair.Symbol())
}

// binanceMinNotional reads MIN_NOTIONAL or its successor NOTIONAL from raw filters.
func binanceMinNotional(filters []map[string]interface{}) decimal.Decimal {
	for _, f := range filters {
		switch f["filterType"] {
		case "MIN_NOTIONAL", "NOTIONAL":
			if v, ok := f["minNotional"].(string); ok {
				return parseDecimal(v)
			}
		}
	}

	return decimal.Zero
}

func (b *Binance) GetBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, domain.NewBackendError(binanceName, "balance", coin, err)
	}

	for _, balance := range account.Balances {
		if balance.Asset == coin {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, domain.NewInsufficientDataError("coin %s not found in %s account", coin, binanceName)
}

func convertBinanceOrders(orders []*binance.Order) []domain.Order {
	res := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		res = append(res, domain.Order{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    o.Symbol,
			Side:      domain.Side(strings.ToLower(string(o.Side))),
			Kind:      domain.OrderKind(strings.ToLower(string(o.Type))),
			Price:     parseDecimal(o.Price),
			Quantity:  parseDecimal(o.OrigQuantity),
			Executed:  parseDecimal(o.ExecutedQuantity),
			Status:    string(o.Status),
			CreatedAt: time.UnixMilli(o.Time),
		})
	}

	return res
}
