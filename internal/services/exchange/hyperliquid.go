package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

const (
	hyperliquidName = "hyperliquid"
	// IOC limit orders emulate market orders at 0.5% slippage.
	hyperliquidSlippage = 0.005
)

// hyperliquidMinNotional minimum order value in USD accepted by the exchange.
var hyperliquidMinNotional = decimal.NewFromInt(10)

// Hyperliquid adapter. Coins are addressed by the base asset of the pair.
type Hyperliquid struct {
	ex          *hyperliquid.Exchange
	info        *hyperliquid.Info
	accountAddr string
	lots        LotSizeResolver
	sizer       sizer
}

func NewHyperliquid(ex *hyperliquid.Exchange, accountAddr string, lots LotSizeResolver) (*Hyperliquid, error) {
	if ex == nil {
		return nil, errors.New("hyperliquid exchange is nil")
	}
	if lots == nil {
		lots = DefaultLots
	}
	h := &Hyperliquid{ex: ex, info: ex.Info(), accountAddr: accountAddr, lots: lots}
	h.sizer = sizer{platform: hyperliquidName, lots: lots, price: h.midPrice, balance: h.GetBalance}

	return h, nil
}

func (h *Hyperliquid) Name() string { return hyperliquidName }

// cloidFromID converts a free-form client ID into a valid cloid (0x + 32 hex chars).
func cloidFromID(id string) string {
	s := strings.TrimSpace(id)
	if s == "" {
		s = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	sum := sha256.Sum256([]byte(s))

	return "0x" + hex.EncodeToString(sum[:16])
}

func (h *Hyperliquid) GetAccount(ctx context.Context) (domain.Account, error) {
	st, err := h.info.SpotUserState(ctx, h.accountAddr)
	if err != nil {
		return domain.Account{}, domain.NewBackendError(hyperliquidName, "account", "", err)
	}

	balances := make([]domain.AssetBalance, 0, len(st.Balances))
	for _, b := range st.Balances {
		total := parseDecimal(b.Total)
		hold := parseDecimal(b.Hold)
		balances = append(balances, domain.AssetBalance{Asset: b.Coin, Free: total.Sub(hold), Locked: hold})
	}

	return domain.Account{Platform: hyperliquidName, Balances: balances, Raw: st}, nil
}

func (h *Hyperliquid) Buy(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideBuy
	return h.place(ctx, req)
}

func (h *Hyperliquid) Sell(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideSell
	return h.place(ctx, req)
}

func (h *Hyperliquid) place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	o, err := h.sizer.prepare(ctx, req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	isBuy := o.req.Side == domain.SideBuy
	coin := o.req.Pair.From
	size, _ := o.quantity.Float64()

	orderType := hyperliquid.OrderType{Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifGtc}}
	px, _ := o.price.Float64()
	if o.req.Kind != domain.OrderKindLimit {
		orderType = hyperliquid.OrderType{Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc}}
		px, err = h.ex.SlippagePrice(ctx, coin, isBuy, hyperliquidSlippage, nil)
		if err != nil {
			return domain.OrderResult{}, h.sizer.placeErr(o, errors.Wrap(err, "slippage price"))
		}
	}

	cloid := cloidFromID(o.req.ClientOrderID)
	_, err = h.ex.Order(ctx, hyperliquid.CreateOrderRequest{
		Coin:          coin,
		IsBuy:         isBuy,
		Price:         px,
		Size:          size,
		ClientOrderID: &cloid,
		OrderType:     orderType,
	}, nil)
	if err != nil {
		return domain.OrderResult{}, h.sizer.placeErr(o, err)
	}

	return domain.OrderResult{OrderID: cloid, Quantity: o.quantity, Price: decimal.NewFromFloat(px)}, nil
}

func (h *Hyperliquid) GetOpenOrders(ctx context.Context, pair domain.Pair, limit int) ([]domain.Order, error) {
	open, err := h.info.FrontendOpenOrders(ctx, h.accountAddr)
	if err != nil {
		return nil, domain.NewBackendError(hyperliquidName, "open orders", pair.From, err)
	}

	orders := make([]domain.Order, 0, len(open))
	for _, o := range open {
		if !strings.EqualFold(o.Coin, pair.From) {
			continue
		}

		orders = append(orders, hyperliquidOpenOrder(o))
	}

	return limitOrders(orders, limit), nil
}

func hyperliquidOpenOrder(o hyperliquid.FrontendOpenOrder) domain.Order {
	side := domain.SideSell
	if o.Side == "B" {
		side = domain.SideBuy
	}

	return domain.Order{
		ID:        strconv.FormatInt(o.Oid, 10),
		Symbol:    o.Coin,
		Side:      side,
		Kind:      domain.OrderKindLimit,
		Price:     decimal.NewFromFloat(o.LimitPx),
		Quantity:  decimal.NewFromFloat(o.Sz),
		Status:    "open",
		CreatedAt: time.UnixMilli(o.Timestamp),
	}
}

// GetAllOrders is not offered by the SDK for spot history.
func (h *Hyperliquid) GetAllOrders(_ context.Context, _ domain.Pair, _ int) ([]domain.Order, error) {
	return nil, domain.NewNotSupportedError(hyperliquidName, "order history")
}

func (h *Hyperliquid) GetPrices(ctx context.Context) ([]domain.TickerPrice, error) {
	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return nil, domain.NewBackendError(hyperliquidName, "prices", "", err)
	}

	prices := make([]domain.TickerPrice, 0, len(mids))
	for coin, mid := range mids {
		prices = append(prices, domain.TickerPrice{Symbol: coin, Price: parseDecimal(mid)})
	}

	return prices, nil
}

func (h *Hyperliquid) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	price, err := h.midPrice(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	return price.Round(h.lots.Resolve(pair.Symbol()).Precision), nil
}

func (h *Hyperliquid) midPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, domain.NewBackendError(hyperliquidName, "price", pair.From, err)
	}

	// mids are keyed by base coin
	mid, ok := mids[pair.From]
	if !ok || mid == "" {
		return decimal.Zero, domain.NewInsufficientDataError("hyperliquid API returned empty mid price for %s", pair.From)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse hyperliquid mid %q", mid)
	}

	return price, nil
}

func (h *Hyperliquid) GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error) {
	meta, err := h.info.Meta(ctx)
	if err != nil {
		return domain.SymbolInfo{}, domain.NewBackendError(hyperliquidName, "meta", pair.From, err)
	}

	for _, asset := range meta.Universe {
		if !strings.EqualFold(asset.Name, pair.From) {
			continue
		}

		decimals := int32(asset.SzDecimals)
		return domain.SymbolInfo{
			Symbol:    pair.Symbol(),
			Base:      pair.From,
			Quote:     pair.To,
			Status:    "trading",
			Tradeable: true,
			LotSize: domain.LotSize{
				Symbol:      pair.Symbol(),
				Precision:   domain.DefaultPrecision,
				StepSize:    decimal.New(1, -decimals),
				MinNotional: hyperliquidMinNotional,
			},
		}, nil
	}

	return domain.SymbolInfo{}, domain.NewInsufficientDataError("hyperliquid has no asset %s", pair.From)
}

func (h *Hyperliquid) GetBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	st, err := h.info.SpotUserState(ctx, h.accountAddr)
	if err != nil {
		return decimal.Zero, domain.NewBackendError(hyperliquidName, "balance", coin, err)
	}

	for _, b := range st.Balances {
		if strings.EqualFold(b.Coin, coin) {
			return parseDecimal(b.Total).Sub(parseDecimal(b.Hold)), nil
		}
	}

	return decimal.Zero, domain.NewInsufficientDataError("coin %s not found in %s account", coin, hyperliquidName)
}
