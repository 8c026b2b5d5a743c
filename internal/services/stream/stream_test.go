package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
	"go.uber.org/zap"
)

var testPair = domain.Pair{From: "ETH", To: "BTC"}

func tick(ask, bid string) domain.PriceTick {
	return domain.PriceTick{Ask: decimal.RequireFromString(ask), Bid: decimal.RequireFromString(bid), Time: time.Now()}
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	sub := NewSubscription(zap.NewNop(), 4, nil)

	var stops int32
	sub.stop = func() error {
		atomic.AddInt32(&stops, 1)
		return nil
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))

	select {
	case <-sub.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}

func TestSubscription_PublishAfterCloseDropped(t *testing.T) {
	sub := NewSubscription(zap.NewNop(), 4, nil)
	require.NoError(t, sub.Close())

	sub.Publish(tick("1", "1"))
	sub.Fail(errors.New("late"))

	assert.Empty(t, sub.Ticks())
	assert.Empty(t, sub.Err())
}

func TestSubscription_DropsOldestWhenFull(t *testing.T) {
	sub := NewSubscription(zap.NewNop(), 2, nil)

	sub.Publish(tick("1", "1"))
	sub.Publish(tick("2", "2"))
	sub.Publish(tick("3", "3"))

	require.Len(t, sub.Ticks(), 2)
	first := <-sub.Ticks()
	second := <-sub.Ticks()
	assert.True(t, first.Ask.Equal(decimal.NewFromInt(2)), "got %s", first.Ask)
	assert.True(t, second.Ask.Equal(decimal.NewFromInt(3)), "got %s", second.Ask)
}

func TestSubscription_IgnoresTicksAfterFailure(t *testing.T) {
	sub := NewSubscription(zap.NewNop(), 4, nil)

	sub.Publish(tick("1", "1"))
	sub.Fail(errors.New("feed lost"))
	sub.Publish(tick("2", "2"))

	require.Len(t, sub.Ticks(), 1)
	got := <-sub.Ticks()
	assert.True(t, got.Ask.Equal(decimal.NewFromInt(1)))
	assert.Len(t, sub.Err(), 1)
}

func TestSubscription_MalformedTick(t *testing.T) {
	sub := NewSubscription(zap.NewNop(), 2, nil)

	sub.Publish(domain.PriceTick{Ask: decimal.Zero, Bid: decimal.NewFromInt(1)})

	assert.Empty(t, sub.Ticks())
	select {
	case err := <-sub.Err():
		assert.ErrorIs(t, err, domain.ErrValidation)
	default:
		t.Fatal("expected validation error")
	}
}

func TestSubscription_ClosesWithContext(t *testing.T) {
	sub := NewSubscription(zap.NewNop(), 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sub.watch(ctx)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not released on context cancel")
	}
}

type pricerFunc func(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)

func (f pricerFunc) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return f(ctx, pair)
}

func TestPoller(t *testing.T) {
	t.Run("emits ticks with ask equal to bid", func(t *testing.T) {
		var n int64
		pricer := pricerFunc(func(_ context.Context, _ domain.Pair) (decimal.Decimal, error) {
			return decimal.NewFromInt(atomic.AddInt64(&n, 1)), nil
		})

		poller := NewPoller(pricer, 5*time.Millisecond, nil, zap.NewNop())
		sub, err := poller.Subscribe(context.Background(), testPair)
		require.NoError(t, err)
		defer sub.Close()

		for want := int64(1); want <= 3; want++ {
			select {
			case got := <-sub.Ticks():
				assert.True(t, got.Ask.Equal(got.Bid))
				assert.True(t, got.Ask.Equal(decimal.NewFromInt(want)), "got %s", got.Ask)
			case <-time.After(time.Second):
				t.Fatal("no tick received")
			}
		}
	})

	t.Run("reports exhausted retries", func(t *testing.T) {
		pricer := pricerFunc(func(_ context.Context, _ domain.Pair) (decimal.Decimal, error) {
			return decimal.Zero, domain.NewBackendError("simulate", "price", "ETHBTC", errors.New("down"))
		})

		r := retrier.New(retrier.WithMaxRetries(1), retrier.WithInitialInterval(time.Millisecond))
		sub, err := NewPoller(pricer, time.Millisecond, r, zap.NewNop()).Subscribe(context.Background(), testPair)
		require.NoError(t, err)
		defer sub.Close()

		select {
		case err := <-sub.Err():
			assert.ErrorIs(t, err, domain.ErrBackend)
		case <-time.After(time.Second):
			t.Fatal("expected stream error")
		}
	})

	t.Run("close stops polling", func(t *testing.T) {
		var calls int64
		pricer := pricerFunc(func(_ context.Context, _ domain.Pair) (decimal.Decimal, error) {
			atomic.AddInt64(&calls, 1)
			return decimal.NewFromInt(1), nil
		})

		sub, err := NewPoller(pricer, time.Millisecond, nil, zap.NewNop()).Subscribe(context.Background(), testPair)
		require.NoError(t, err)
		require.NoError(t, sub.Close())

		after := atomic.LoadInt64(&calls)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, after, atomic.LoadInt64(&calls))
	})
}

func TestBinanceStream(t *testing.T) {
	var handler binance.WsBookTickerHandler
	doneC := make(chan struct{})
	stopC := make(chan struct{})

	s := NewBinanceStream(zap.NewNop())
	s.serve = func(symbol string, h binance.WsBookTickerHandler, _ binance.ErrHandler) (chan struct{}, chan struct{}, error) {
		assert.Equal(t, "ETHBTC", symbol)
		handler = h
		go func() {
			<-stopC
			close(doneC)
		}()
		return doneC, stopC, nil
	}

	sub, err := s.Subscribe(context.Background(), testPair)
	require.NoError(t, err)

	handler(&binance.WsBookTickerEvent{Symbol: "ETHBTC", BestBidPrice: "0.039940", BestAskPrice: "0.039942"})

	got := <-sub.Ticks()
	assert.True(t, got.Ask.Equal(decimal.RequireFromString("0.039942")))
	assert.True(t, got.Bid.Equal(decimal.RequireFromString("0.03994")))

	handler(&binance.WsBookTickerEvent{Symbol: "ETHBTC", BestBidPrice: "n/a", BestAskPrice: "0.039942"})
	assert.ErrorIs(t, <-sub.Err(), domain.ErrValidation)

	require.NoError(t, sub.Close())
	select {
	case <-doneC:
	default:
		t.Fatal("vendor stream must be stopped on close")
	}
}

func TestParseBybitMessage(t *testing.T) {
	t.Run("snapshot", func(t *testing.T) {
		msg := []byte(`{"topic":"orderbook.1.ETHBTC","type":"snapshot","ts":1672304484978,
			"data":{"s":"ETHBTC","b":[["0.03994","1.2"]],"a":[["0.039942","0.8"]],"u":1,"seq":1}}`)

		got, ok, err := parseBybitMessage(msg, domain.PriceTick{})
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.Bid.Equal(decimal.RequireFromString("0.03994")))
		assert.True(t, got.Ask.Equal(decimal.RequireFromString("0.039942")))
		assert.Equal(t, int64(1672304484978), got.Time.UnixMilli())
	})

	t.Run("delta keeps missing side", func(t *testing.T) {
		last := tick("0.05", "0.04")
		msg := []byte(`{"topic":"orderbook.1.ETHBTC","type":"delta","ts":1,"data":{"s":"ETHBTC","b":[],"a":[["0.051","1"]]}}`)

		got, ok, err := parseBybitMessage(msg, last)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.Bid.Equal(decimal.RequireFromString("0.04")))
		assert.True(t, got.Ask.Equal(decimal.RequireFromString("0.051")))
	})

	t.Run("control frames are skipped", func(t *testing.T) {
		for _, msg := range []string{
			`{"success":true,"ret_msg":"","conn_id":"x","op":"subscribe"}`,
			`{"success":true,"ret_msg":"pong","conn_id":"x","op":"ping"}`,
			`{"topic":"publicTrade.ETHBTC","data":[]}`,
		} {
			_, ok, err := parseBybitMessage([]byte(msg), domain.PriceTick{})
			require.NoError(t, err)
			assert.False(t, ok, msg)
		}
	})

	t.Run("rejected subscription", func(t *testing.T) {
		msg := []byte(`{"success":false,"ret_msg":"error:handler not found","op":"subscribe"}`)

		_, _, err := parseBybitMessage(msg, domain.PriceTick{})
		assert.ErrorIs(t, err, domain.ErrBackend)
	})

	t.Run("malformed price", func(t *testing.T) {
		msg := []byte(`{"topic":"orderbook.1.ETHBTC","data":{"b":[["abc","1"]],"a":[["1","1"]]}}`)

		_, _, err := parseBybitMessage(msg, domain.PriceTick{})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
