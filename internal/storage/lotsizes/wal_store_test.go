package lotsizes

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
)

type fetcherStub struct {
	info  domain.SymbolInfo
	err   error
	calls int
}

func (f *fetcherStub) GetSymbolInfo(_ context.Context, _ domain.Pair) (domain.SymbolInfo, error) {
	f.calls++
	return f.info, f.err
}

func fastRetrier() *retrier.Retrier {
	return retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Millisecond))
}

func TestWALStore_ResolveDefault(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	lot := store.Resolve("ETHBTC")
	assert.Equal(t, int32(domain.DefaultPrecision), lot.Precision)
	assert.True(t, lot.StepSize.IsZero())
	assert.True(t, lot.MinNotional.IsZero())

	_, ok := store.Lookup("ETHBTC")
	assert.False(t, ok)
}

func TestWALStore_PutAndReplay(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(domain.LotSize{
		Symbol:      "ETHBTC",
		Precision:   8,
		StepSize:    decimal.RequireFromString("0.001"),
		MinNotional: decimal.RequireFromString("0.0001"),
	}))
	require.NoError(t, store.Put(domain.LotSize{
		Symbol:    "ETHBTC",
		Precision: 8,
		StepSize:  decimal.RequireFromString("0.0001"),
	}))
	assert.Equal(t, uint64(2), store.CurrentIndex())
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	lot, ok := reopened.Lookup("ETHBTC")
	require.True(t, ok)
	assert.True(t, lot.StepSize.Equal(decimal.RequireFromString("0.0001")), "last write wins, got %s", lot.StepSize)
}

func TestWALStore_PutRequiresSymbol(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Put(domain.LotSize{}), domain.ErrValidation)
}

func TestWALStore_Sync(t *testing.T) {
	pair := domain.Pair{From: "ETH", To: "BTC"}

	t.Run("fetches and persists missing symbol", func(t *testing.T) {
		store, err := NewWALStore(t.TempDir())
		require.NoError(t, err)
		defer store.Close()

		fetcher := &fetcherStub{info: domain.SymbolInfo{
			Symbol:  "ETHBTC",
			LotSize: domain.LotSize{Precision: 8, StepSize: decimal.RequireFromString("0.0001")},
		}}

		lot, err := store.Sync(context.Background(), fetcher, pair, fastRetrier())
		require.NoError(t, err)
		assert.Equal(t, "ETHBTC", lot.Symbol)

		_, err = store.Sync(context.Background(), fetcher, pair, fastRetrier())
		require.NoError(t, err)
		assert.Equal(t, 1, fetcher.calls)

		stored, ok := store.Lookup("ETHBTC")
		require.True(t, ok)
		assert.True(t, stored.StepSize.Equal(decimal.RequireFromString("0.0001")))
	})

	t.Run("falls back to default on failure", func(t *testing.T) {
		store, err := NewWALStore(t.TempDir())
		require.NoError(t, err)
		defer store.Close()

		fetcher := &fetcherStub{err: errors.New("exchange down")}

		lot, err := store.Sync(context.Background(), fetcher, pair, fastRetrier())
		require.Error(t, err)
		assert.Equal(t, domain.DefaultLotSize("ETHBTC"), lot)
		assert.Equal(t, 3, fetcher.calls)
	})

	t.Run("does not retry unsupported metadata", func(t *testing.T) {
		store, err := NewWALStore(t.TempDir())
		require.NoError(t, err)
		defer store.Close()

		fetcher := &fetcherStub{err: domain.NewNotSupportedError("simulate", "symbol info")}

		_, err = store.Sync(context.Background(), fetcher, pair, fastRetrier())
		assert.ErrorIs(t, err, domain.ErrNotSupported)
		assert.Equal(t, 1, fetcher.calls)
	})
}
