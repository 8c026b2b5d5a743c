package internal

import (
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/rangebot/internal/clients"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/internal/services/exchange"
	"github.com/vadiminshakov/rangebot/internal/services/stream"
	"github.com/vadiminshakov/rangebot/internal/storage/simstate"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
)

// serviceProvider builds the platform-specific exchange adapter and price stream.
type serviceProvider interface {
	Exchange(pair domain.Pair) (exchange.Exchange, error)
	Stream(ex exchange.Exchange) stream.Stream
}

// newServiceProvider creates a new service provider based on the client type.
// This is the single point of truth for dispatching to platform-specific implementations.
func newServiceProvider(client any, lots exchange.LotSizeResolver, pollInterval time.Duration, logger *zap.Logger) (serviceProvider, error) {
	if lots == nil {
		lots = exchange.DefaultLots
	}

	switch c := client.(type) {
	case *binance.Client:
		return &binanceProvider{client: c, lots: lots, logger: logger}, nil
	case *clients.BybitClient:
		return &bybitProvider{client: c, lots: lots, logger: logger}, nil
	case *clients.SimulateClient:
		return &simulateProvider{client: c, lots: lots, interval: pollInterval, logger: logger}, nil
	case *clients.HyperliquidClient:
		return &hyperliquidProvider{client: c, lots: lots, interval: pollInterval, logger: logger}, nil
	default:
		return nil, domain.NewValidationError("unsupported client type: %T", client)
	}
}

type binanceProvider struct {
	client *binance.Client
	lots   exchange.LotSizeResolver
	logger *zap.Logger
}

func (p *binanceProvider) Exchange(domain.Pair) (exchange.Exchange, error) {
	return exchange.NewBinance(p.client, p.lots), nil
}

func (p *binanceProvider) Stream(exchange.Exchange) stream.Stream {
	return stream.NewBinanceStream(p.logger)
}

type bybitProvider struct {
	client *clients.BybitClient
	lots   exchange.LotSizeResolver
	logger *zap.Logger
}

func (p *bybitProvider) Exchange(domain.Pair) (exchange.Exchange, error) {
	return exchange.NewBybit(p.client.REST(), p.lots), nil
}

func (p *bybitProvider) Stream(exchange.Exchange) stream.Stream {
	return stream.NewBybitStream(p.client.PublicStreamURL(), retrier.New(retrier.WithMaxRetries(3)), p.logger)
}

type simulateProvider struct {
	client   *clients.SimulateClient
	lots     exchange.LotSizeResolver
	interval time.Duration
	logger   *zap.Logger
}

func (p *simulateProvider) Exchange(pair domain.Pair) (exchange.Exchange, error) {
	var store *simstate.Store
	if dir := p.client.StateDir(); dir != "" {
		s, err := simstate.NewStore(dir, pair)
		if err != nil {
			return nil, errors.Wrap(err, "open simulate state")
		}
		store = s
	}

	market := exchange.NewBinance(p.client.GetBinanceClient(), p.lots)

	return exchange.NewSimulate(pair, market, p.lots, store, clients.DefaultSimulateQuoteBalance, p.logger)
}

func (p *simulateProvider) Stream(ex exchange.Exchange) stream.Stream {
	return stream.NewPoller(ex, p.interval, nil, p.logger)
}

type hyperliquidProvider struct {
	client   *clients.HyperliquidClient
	lots     exchange.LotSizeResolver
	interval time.Duration
	logger   *zap.Logger
}

func (p *hyperliquidProvider) Exchange(domain.Pair) (exchange.Exchange, error) {
	return exchange.NewHyperliquid(p.client.Exchange(), p.client.AccountAddress(), p.lots)
}

func (p *hyperliquidProvider) Stream(ex exchange.Exchange) stream.Stream {
	return stream.NewPoller(ex, p.interval, nil, p.logger)
}
