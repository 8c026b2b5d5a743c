// Package controller runs one buy-then-sell round trip driven by live price ticks.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/internal/services/stream"
	"go.uber.org/zap"
)

// DefaultShutdownDelay pause before the stream is released so in-flight acknowledgements settle.
const DefaultShutdownDelay = 3 * time.Second

var errEmptyResult = errors.New("order acknowledged without an order id")

// Trader order placement subset of an exchange adapter.
type Trader interface {
	Name() string
	Buy(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	Sell(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	GetBalance(ctx context.Context, coin string) (decimal.Decimal, error)
}

// Publisher receives every state transition.
type Publisher interface {
	Publish(event domain.SessionEvent)
}

type Option func(*Controller)

// WithShutdownDelay overrides DefaultShutdownDelay. Zero releases the stream immediately.
func WithShutdownDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.shutdownDelay = d
	}
}

// WithPublisher sets the observer of session events.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// Controller owns one trading session and its price subscription.
// Ticks are evaluated one at a time on the goroutine that calls Run.
type Controller struct {
	logger        *zap.Logger
	trader        Trader
	stream        stream.Stream
	shutdownDelay time.Duration
	publisher     Publisher

	buyBand  domain.Band
	sellBand domain.Band

	mu      sync.RWMutex
	session domain.TradingSession
	state   domain.SessionState
}

func New(logger *zap.Logger, trader Trader, st stream.Stream, session domain.TradingSession, opts ...Option) (*Controller, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if trader == nil || st == nil {
		return nil, errors.New("trader and stream are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if session.OrderKind == "" {
		session.OrderKind = domain.OrderKindMarket
	}
	if session.SellSizing == "" {
		session.SellSizing = domain.SellSizingBudget
	}

	c := &Controller{
		logger: logger.With(
			zap.String("pair", session.Pair.String()),
			zap.String("platform", trader.Name())),
		trader:        trader,
		stream:        st,
		shutdownDelay: DefaultShutdownDelay,
		buyBand:       session.BuyBand(),
		sellBand:      session.SellBand(),
		session:       session,
		state:         domain.StateInit,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// State returns the current state. Safe for concurrent use.
func (c *Controller) State() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Session returns a copy of the session including its fill flags.
func (c *Controller) Session() domain.TradingSession {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session
}

// Run subscribes to the pair's ticks and blocks until the round trip completes
// (nil) or fails (the terminal error). The subscription is released before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() != domain.StateInit {
		return errors.Errorf("session already started, state %s", c.State())
	}

	sub, err := c.stream.Subscribe(ctx, c.session.Pair)
	if err != nil {
		err = c.classify("subscribe", "", err)
		c.transition(domain.StateFailed, "subscribe failed", "", err)
		return err
	}

	c.logger.Info("session started",
		zap.String("buy_band", c.buyBand.String()),
		zap.String("sell_band", c.sellBand.String()),
		zap.String("order_kind", string(c.session.OrderKind)))
	c.transition(domain.StateWaitingBuy, "waiting for ask in buy band "+c.buyBand.String(), "", nil)

	runErr := c.loop(ctx, sub)
	if runErr != nil {
		c.transition(domain.StateFailed, "session failed", "", runErr)
	} else {
		c.transition(domain.StateComplete, "round trip complete", "", nil)
	}

	c.release(ctx, sub)

	return runErr
}

func (c *Controller) loop(ctx context.Context, sub *stream.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return c.drain(ctx, sub, err)
		case <-sub.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.NewBackendError(c.trader.Name(), "stream", c.session.Pair.Symbol(),
				errors.New("subscription released before session end"))
		case tick := <-sub.Ticks():
			done, err := c.onTick(ctx, tick)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// drain evaluates ticks published before the stream failed, then reports streamErr.
func (c *Controller) drain(ctx context.Context, sub *stream.Subscription, streamErr error) error {
	for {
		select {
		case tick := <-sub.Ticks():
			done, err := c.onTick(ctx, tick)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		default:
			return c.classify("stream", "", streamErr)
		}
	}
}

// onTick evaluates one tick. done is true once the sell leg is placed.
func (c *Controller) onTick(ctx context.Context, tick domain.PriceTick) (bool, error) {
	switch c.State() {
	case domain.StateWaitingBuy:
		// the tick that fires the buy never fires the sell
		return false, c.tryBuy(ctx, tick)
	case domain.StateHolding:
		c.transition(domain.StateWaitingSell, "waiting for bid in sell band "+c.sellBand.String(), "", nil)
		return c.trySell(ctx, tick)
	case domain.StateWaitingSell:
		return c.trySell(ctx, tick)
	default:
		return c.State().IsTerminal(), nil
	}
}

func (c *Controller) tryBuy(ctx context.Context, tick domain.PriceTick) error {
	if !c.buyBand.Contains(tick.Ask) {
		c.logger.Debug("ask outside buy band", zap.String("ask", tick.Ask.String()))
		return nil
	}

	req := domain.OrderRequest{
		Pair:   c.session.Pair,
		Side:   domain.SideBuy,
		Kind:   c.session.OrderKind,
		Amount: c.budget(),
	}
	if req.Kind == domain.OrderKindLimit {
		req.LimitPrice = tick.Ask
	}

	c.logger.Info("ask in buy band, buying", zap.String("ask", tick.Ask.String()), zap.String("amount", req.Amount.String()))

	res, err := c.trader.Buy(ctx, req)
	if err != nil {
		return c.classify("buy", domain.SideBuy, err)
	}
	if !res.Placed() {
		return &domain.BackendError{Platform: c.trader.Name(), Op: "buy", Symbol: c.session.Pair.Symbol(),
			Side: domain.SideBuy, Err: errEmptyResult}
	}

	c.mu.Lock()
	c.session.Purchased = true
	c.mu.Unlock()

	c.logger.Info("buy placed", zap.String("order_id", res.OrderID), zap.String("qty", res.Quantity.String()))
	c.transition(domain.StateHolding, "bought "+res.Quantity.String()+" "+c.session.Pair.From, res.OrderID, nil)

	return nil
}

func (c *Controller) trySell(ctx context.Context, tick domain.PriceTick) (bool, error) {
	if !c.Session().Purchased {
		return false, nil
	}
	if !c.sellBand.Contains(tick.Bid) {
		c.logger.Debug("bid outside sell band", zap.String("bid", tick.Bid.String()))
		return false, nil
	}

	req := domain.OrderRequest{
		Pair: c.session.Pair,
		Side: domain.SideSell,
		Kind: c.session.OrderKind,
	}
	if req.Kind == domain.OrderKindLimit {
		req.LimitPrice = tick.Bid
	}

	switch c.session.SellSizing {
	case domain.SellSizingBalance:
		free, err := c.trader.GetBalance(ctx, c.session.Pair.From)
		if err != nil {
			return false, c.classify("balance", domain.SideSell, err)
		}
		if !free.GreaterThan(decimal.Zero) {
			return false, domain.NewInsufficientDataError("no free %s to sell", c.session.Pair.From)
		}
		req.Quantity = free
	default:
		req.Amount = c.budget()
	}

	c.logger.Info("bid in sell band, selling", zap.String("bid", tick.Bid.String()),
		zap.String("amount", req.Amount.String()), zap.String("qty", req.Quantity.String()))

	res, err := c.trader.Sell(ctx, req)
	if err != nil {
		return false, c.classify("sell", domain.SideSell, err)
	}
	if !res.Placed() {
		return false, &domain.BackendError{Platform: c.trader.Name(), Op: "sell", Symbol: c.session.Pair.Symbol(),
			Side: domain.SideSell, Err: errEmptyResult}
	}

	c.mu.Lock()
	c.session.Sold = true
	c.mu.Unlock()

	c.logger.Info("sell placed", zap.String("order_id", res.OrderID), zap.String("qty", res.Quantity.String()))
	c.publish(domain.StateWaitingSell, "sold "+res.Quantity.String()+" "+c.session.Pair.From, res.OrderID, nil)

	return true, nil
}

// budget quote amount of each leg: the configured amount or the buy band lower bound.
func (c *Controller) budget() decimal.Decimal {
	if c.session.Amount.GreaterThan(decimal.Zero) {
		return c.session.Amount
	}

	return c.buyBand.Lower
}

// classify wraps errors without a known kind as backend failures.
func (c *Controller) classify(op string, side domain.Side, err error) error {
	if domain.IsClassified(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &domain.BackendError{
		Platform: c.trader.Name(),
		Op:       op,
		Symbol:   c.session.Pair.Symbol(),
		Side:     side,
		Err:      err,
	}
}

func (c *Controller) release(ctx context.Context, sub *stream.Subscription) {
	if c.shutdownDelay > 0 && ctx.Err() == nil {
		timer := time.NewTimer(c.shutdownDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	if err := sub.Close(); err != nil {
		c.logger.Warn("failed to release price stream", zap.Error(err))
	}
	c.logger.Info("price stream released", zap.String("state", c.State().String()))
}

func (c *Controller) transition(state domain.SessionState, msg, orderID string, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	if err != nil {
		c.logger.Error(msg, zap.String("state", state.String()), zap.Error(err))
	} else {
		c.logger.Info(msg, zap.String("state", state.String()))
	}
	c.publish(state, msg, orderID, err)
}

func (c *Controller) publish(state domain.SessionState, msg, orderID string, err error) {
	if c.publisher == nil {
		return
	}

	event := domain.SessionEvent{
		Time:     time.Now(),
		Platform: c.trader.Name(),
		Pair:     c.session.Pair.String(),
		State:    state.String(),
		Message:  msg,
		OrderID:  orderID,
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.publisher.Publish(event)
}
