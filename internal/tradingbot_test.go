package internal

import (
	"context"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/rangebot/config"
	"github.com/vadiminshakov/rangebot/internal/clients"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/internal/events"
	"github.com/vadiminshakov/rangebot/internal/services/exchange"
	"github.com/vadiminshakov/rangebot/internal/services/stream"
	"github.com/vadiminshakov/rangebot/internal/storage/lotsizes"
)

func testConfig(platform string) config.Config {
	return config.Config{
		Platform:          platform,
		Pair:              domain.Pair{From: "ETH", To: "BTC"},
		BuyPrice:          decimal.RequireFromString("0.0399410"),
		SellPrice:         decimal.RequireFromString("0.0399430"),
		AllowablePercent:  decimal.RequireFromString("0.1"),
		OrderKind:         domain.OrderKindMarket,
		SellSizing:        domain.SellSizingBudget,
		PollPriceInterval: time.Second,
	}
}

func TestNewTradingBot(t *testing.T) {
	tests := []struct {
		name             string
		platform         string
		client           any
		expectError      bool
		expectedErrorMsg string
	}{
		{
			name:             "Unsupported Client",
			platform:         "binance",
			client:           nil,
			expectError:      true,
			expectedErrorMsg: "unsupported platform: binance",
		},
		{
			name:             "Unknown Platform",
			platform:         "kraken",
			client:           &binance.Client{},
			expectError:      true,
			expectedErrorMsg: "unsupported platform",
		},
		{
			name:     "Valid Binance Platform",
			platform: "binance",
			client:   &binance.Client{},
		},
		{
			name:     "Valid Bybit Platform",
			platform: "bybit",
			client:   clients.NewBybitClient("key", "secret"),
		},
		{
			name:     "Valid Simulate Platform",
			platform: "simulate",
			client:   clients.NewSimulateClient(""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConfig(tt.platform)

			bot, err := NewTradingBot(conf, tt.client, nil, zap.NewNop(), nil)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErrorMsg)
				assert.Nil(t, bot)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, bot)
			assert.Equal(t, conf, bot.Config)
			assert.Equal(t, tt.platform, bot.Exchange.Name())
			assert.NotNil(t, bot.Stream)
		})
	}
}

func TestNewServiceProvider_Streams(t *testing.T) {
	p, err := newServiceProvider(clients.NewSimulateClient(""), nil, time.Second, zap.NewNop())
	require.NoError(t, err)
	ex, err := p.Exchange(domain.Pair{From: "ETH", To: "BTC"})
	require.NoError(t, err)
	assert.IsType(t, &stream.Poller{}, p.Stream(ex))

	p, err = newServiceProvider(&binance.Client{}, nil, time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &stream.BinanceStream{}, p.Stream(nil))

	p, err = newServiceProvider(clients.NewBybitClient("k", "s"), nil, time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &stream.BybitStream{}, p.Stream(nil))
}

type fixedMarket struct {
	price decimal.Decimal
}

func (m fixedMarket) GetPrice(context.Context, domain.Pair) (decimal.Decimal, error) {
	return m.price, nil
}

func (m fixedMarket) GetPrices(context.Context) ([]domain.TickerPrice, error) {
	return []domain.TickerPrice{{Symbol: "ETHBTC", Price: m.price}}, nil
}

func (m fixedMarket) GetSymbolInfo(_ context.Context, pair domain.Pair) (domain.SymbolInfo, error) {
	return domain.SymbolInfo{
		Symbol: pair.Symbol(),
		LotSize: domain.LotSize{
			Symbol:      pair.Symbol(),
			Precision:   4,
			StepSize:    decimal.RequireFromString("0.0001"),
			MinNotional: decimal.RequireFromString("0.0001"),
		},
	}, nil
}

type scriptedStream struct {
	ticks []domain.PriceTick
}

func (s scriptedStream) Subscribe(context.Context, domain.Pair) (*stream.Subscription, error) {
	sub := stream.NewSubscription(zap.NewNop(), len(s.ticks)+1, nil)
	for _, tick := range s.ticks {
		sub.Publish(tick)
	}
	return sub, nil
}

func TestTradingBot_RunSimulatedRoundTrip(t *testing.T) {
	conf := testConfig("simulate")
	pair := conf.Pair

	lots, err := lotsizes.NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer lots.Close()

	market := fixedMarket{price: decimal.RequireFromString("0.039942")}
	sim, err := exchange.NewSimulate(pair, market, lots, nil, decimal.NewFromInt(1), zap.NewNop())
	require.NoError(t, err)

	now := time.Now()
	feed := events.NewSessionBroadcaster(16)
	bot := &TradingBot{
		Exchange: sim,
		Stream: scriptedStream{ticks: []domain.PriceTick{
			{Ask: decimal.RequireFromString("0.03990"), Bid: decimal.RequireFromString("0.03989"), Time: now},
			{Ask: decimal.RequireFromString("0.03995"), Bid: decimal.RequireFromString("0.03994"), Time: now},
		}},
		Config:    conf,
		lots:      lots,
		logger:    zap.NewNop(),
		publisher: feed,
	}

	require.NoError(t, bot.Run(context.Background()))
	assert.Equal(t, domain.StateComplete, bot.Controller().State())

	lot, ok := lots.Lookup("ETHBTC")
	require.True(t, ok)
	assert.Equal(t, int32(4), lot.Precision)

	// 0.03594690 / 0.039942 rounds to 0.9 with step 0.0001
	base, err := sim.GetBalance(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, base.IsZero(), "base %s", base)

	recent := feed.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "complete", recent[len(recent)-1].State)
}
