package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

func TestHyperliquidOpenOrder(t *testing.T) {
	got := hyperliquidOpenOrder(hyperliquid.FrontendOpenOrder{
		Coin:      "ETH",
		LimitPx:   2450.5,
		Oid:       91490942,
		Side:      "B",
		Sz:        0.0125,
		Timestamp: 1700000000000,
	})

	assert.Equal(t, "91490942", got.ID)
	assert.Equal(t, "ETH", got.Symbol)
	assert.Equal(t, domain.SideBuy, got.Side)
	assert.Equal(t, domain.OrderKindLimit, got.Kind)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("2450.5")), "got %s", got.Price)
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("0.0125")), "got %s", got.Quantity)
	assert.Equal(t, time.UnixMilli(1700000000000), got.CreatedAt)

	sell := hyperliquidOpenOrder(hyperliquid.FrontendOpenOrder{Coin: "ETH", Side: "A", LimitPx: 1, Sz: 1})
	assert.Equal(t, domain.SideSell, sell.Side)
}
