package exchange

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/internal/storage/simstate"
	"go.uber.org/zap"
)

const simulateName = "simulate"

// MarketData read-only market access the simulator prices its fills with.
type MarketData interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	GetPrices(ctx context.Context) ([]domain.TickerPrice, error)
	GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error)
}

// Simulate fills every order immediately against an in-memory wallet.
type Simulate struct {
	mu     sync.RWMutex
	pair   domain.Pair
	market MarketData
	lots   LotSizeResolver
	sizer  sizer
	logger *zap.Logger
	store  *simstate.Store
	wallet map[string]decimal.Decimal
	orders []domain.Order
	seq    int64
}

// NewSimulate creates a simulator holding startQuote of the pair's quote currency.
// A nil store keeps the wallet in memory only.
func NewSimulate(pair domain.Pair, market MarketData, lots LotSizeResolver, store *simstate.Store,
	startQuote decimal.Decimal, logger *zap.Logger) (*Simulate, error) {
	if market == nil {
		return nil, errors.New("market data is required for simulate exchange")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lots == nil {
		lots = DefaultLots
	}

	s := &Simulate{
		pair:   pair,
		market: market,
		lots:   lots,
		logger: logger,
		store:  store,
		wallet: map[string]decimal.Decimal{pair.From: decimal.Zero, pair.To: startQuote},
	}
	s.sizer = sizer{platform: simulateName, lots: lots, price: market.GetPrice, balance: s.GetBalance}

	if err := s.restoreState(); err != nil {
		logger.Warn("failed to restore simulate state", zap.Error(err))
	}

	logger.Info("simulate init",
		zap.String("pair", pair.String()),
		zap.String("base", s.wallet[pair.From].String()),
		zap.String("quote", s.wallet[pair.To].String()))

	return s, nil
}

func (s *Simulate) Name() string { return simulateName }

func (s *Simulate) GetAccount(_ context.Context) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := make([]domain.AssetBalance, 0, len(s.wallet))
	for asset, amount := range s.wallet {
		balances = append(balances, domain.AssetBalance{Asset: asset, Free: amount, Locked: decimal.Zero})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })

	return domain.Account{Platform: simulateName, Balances: balances}, nil
}

func (s *Simulate) Buy(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideBuy
	return s.place(ctx, req)
}

func (s *Simulate) Sell(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.SideSell
	return s.place(ctx, req)
}

func (s *Simulate) place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	o, err := s.sizer.prepare(ctx, req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	price := o.price
	if price.IsZero() {
		p, err := s.market.GetPrice(ctx, o.req.Pair)
		if err != nil {
			return domain.OrderResult{}, s.sizer.placeErr(o, err)
		}
		price = p.Round(o.lot.Precision)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base, quote := o.req.Pair.From, o.req.Pair.To
	notional := o.quantity.Mul(price)

	switch o.req.Side {
	case domain.SideBuy:
		if s.wallet[quote].LessThan(notional) {
			return domain.OrderResult{}, domain.NewInsufficientDataError("insufficient %s balance: have %s need %s",
				quote, s.wallet[quote].String(), notional.String())
		}
		s.wallet[quote] = s.wallet[quote].Sub(notional)
		s.wallet[base] = s.wallet[base].Add(o.quantity)
	case domain.SideSell:
		if s.wallet[base].LessThan(o.quantity) {
			return domain.OrderResult{}, domain.NewInsufficientDataError("insufficient %s balance: have %s need %s",
				base, s.wallet[base].String(), o.quantity.String())
		}
		s.wallet[base] = s.wallet[base].Sub(o.quantity)
		s.wallet[quote] = s.wallet[quote].Add(notional)
	}

	s.seq++
	id := strconv.FormatInt(s.seq, 10)
	s.orders = append(s.orders, domain.Order{
		ID:        id,
		Symbol:    o.symbol,
		Side:      o.req.Side,
		Kind:      o.req.Kind,
		Price:     price,
		Quantity:  o.quantity,
		Executed:  o.quantity,
		Status:    "FILLED",
		CreatedAt: time.Now(),
	})
	s.persist()

	s.logger.Info("simulated order executed",
		zap.String("id", id),
		zap.String("client_order_id", o.req.ClientOrderID),
		zap.String("side", string(o.req.Side)),
		zap.String("amount", o.quantity.String()),
		zap.String("price", price.String()))

	return domain.OrderResult{OrderID: id, Quantity: o.quantity, Price: price}, nil
}

// GetOpenOrders is always empty: simulated orders fill on placement.
func (s *Simulate) GetOpenOrders(_ context.Context, _ domain.Pair, _ int) ([]domain.Order, error) {
	return []domain.Order{}, nil
}

func (s *Simulate) GetAllOrders(_ context.Context, pair domain.Pair, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Symbol == pair.Symbol() {
			orders = append(orders, o)
		}
	}

	return limitOrders(orders, limit), nil
}

func (s *Simulate) GetPrices(ctx context.Context) ([]domain.TickerPrice, error) {
	return s.market.GetPrices(ctx)
}

func (s *Simulate) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	price, err := s.market.GetPrice(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	return price.Round(s.lots.Resolve(pair.Symbol()).Precision), nil
}

func (s *Simulate) GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error) {
	return s.market.GetSymbolInfo(ctx, pair)
}

func (s *Simulate) GetBalance(_ context.Context, coin string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.wallet[coin]
	if !ok {
		return decimal.Zero, domain.NewInsufficientDataError("coin %s not found in %s wallet", coin, simulateName)
	}

	return balance, nil
}

func (s *Simulate) restoreState() error {
	if s.store == nil {
		return nil
	}

	state, err := s.store.Load()
	if err != nil || state == nil {
		return err
	}

	for asset, raw := range state.Wallet {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrapf(err, "decode %s balance", asset)
		}
		s.wallet[asset] = amount
	}

	for _, so := range state.Orders {
		o, err := so.ToOrder(s.pair.Symbol())
		if err != nil {
			return err
		}
		s.orders = append(s.orders, o)
		if n, err := strconv.ParseInt(o.ID, 10, 64); err == nil && n > s.seq {
			s.seq = n
		}
	}

	return nil
}

// persist must be called with mu held.
func (s *Simulate) persist() {
	if s.store == nil {
		return
	}

	wallet := make(map[string]string, len(s.wallet))
	for asset, amount := range s.wallet {
		wallet[asset] = amount.String()
	}

	orders := make([]simstate.StoredOrder, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, simstate.NewStoredOrder(o))
	}

	if err := s.store.Save(simstate.State{Pair: s.pair.String(), Wallet: wallet, Orders: orders}); err != nil {
		s.logger.Warn("failed to persist simulate state", zap.Error(err))
	}
}
