//go:build integration

package exchange

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rangebot/internal/clients"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

// Calls the public market endpoints of the live APIs. No orders are placed.
// To run: go test -tags=integration -v ./internal/services/exchange/
func TestMarketData_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	backends := map[string]Exchange{
		"binance": NewBinance(clients.NewBinanceClient(os.Getenv(clients.EnvBinanceAPIKey), os.Getenv(clients.EnvBinanceAPISecret)), nil),
		"bybit":   NewBybit(clients.NewBybitClient(os.Getenv(clients.EnvBybitAPIKey), os.Getenv(clients.EnvBybitAPISecret)).REST(), nil),
	}

	for name, ex := range backends {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			pair := domain.Pair{From: "ETH", To: "BTC"}

			price, err := ex.GetPrice(ctx, pair)
			require.NoError(t, err)
			require.True(t, price.GreaterThan(decimal.Zero), "expected price > 0 for %s, got %s", pair, price)

			info, err := ex.GetSymbolInfo(ctx, pair)
			require.NoError(t, err)
			assert.Equal(t, "ETHBTC", info.Symbol)
			assert.True(t, info.LotSize.StepSize.GreaterThan(decimal.Zero))

			_, err = ex.GetPrice(ctx, domain.Pair{From: "INVALID", To: "PAIR"})
			assert.ErrorIs(t, err, domain.ErrBackend)
		})
	}
}
