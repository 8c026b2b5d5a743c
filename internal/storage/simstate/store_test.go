package simstate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

func TestStore_SaveLoad(t *testing.T) {
	pair := domain.Pair{From: "ETH", To: "BTC"}
	store, err := NewStore(t.TempDir(), pair)
	require.NoError(t, err)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	order := domain.Order{
		ID:        "1",
		Side:      domain.SideBuy,
		Kind:      domain.OrderKindMarket,
		Price:     decimal.RequireFromString("0.039942"),
		Quantity:  decimal.RequireFromString("0.9"),
		CreatedAt: created,
	}

	require.NoError(t, store.Save(State{
		Pair:   pair.String(),
		Wallet: map[string]string{"ETH": "0.9", "BTC": "9999.9640531"},
		Orders: []StoredOrder{NewStoredOrder(order)},
	}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "0.9", loaded.Wallet["ETH"])
	require.Len(t, loaded.Orders, 1)

	restored, err := loaded.Orders[0].ToOrder(pair.Symbol())
	require.NoError(t, err)
	assert.Equal(t, "ETHBTC", restored.Symbol)
	assert.True(t, restored.Quantity.Equal(order.Quantity))
	assert.True(t, restored.CreatedAt.Equal(created))
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("", domain.Pair{From: "ETH", To: "BTC"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
