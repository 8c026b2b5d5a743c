package stream

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"go.uber.org/zap"
)

const binanceStopTimeout = 5 * time.Second

type bookTickerServe func(symbol string, handler binance.WsBookTickerHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error)

// BinanceStream best bid/ask from the spot book ticker websocket.
type BinanceStream struct {
	serve  bookTickerServe
	logger *zap.Logger
	buffer int
}

func NewBinanceStream(logger *zap.Logger) *BinanceStream {
	return &BinanceStream{serve: binance.WsBookTickerServe, logger: logger, buffer: DefaultBufferSize}
}

func (b *BinanceStream) Subscribe(ctx context.Context, pair domain.Pair) (*Subscription, error) {
	sub := NewSubscription(b.logger, b.buffer, nil)

	handler := func(event *binance.WsBookTickerEvent) {
		sub.Publish(binanceTick(event))
	}
	errHandler := func(err error) {
		sub.Fail(domain.NewBackendError("binance", "book ticker stream", pair.Symbol(), err))
	}

	doneC, stopC, err := b.serve(pair.Symbol(), handler, errHandler)
	if err != nil {
		return nil, domain.NewBackendError("binance", "subscribe", pair.Symbol(), err)
	}

	sub.stop = func() error {
		close(stopC)
		select {
		case <-doneC:
		case <-time.After(binanceStopTimeout):
			b.logger.Warn("binance stream did not stop in time", zap.String("symbol", pair.Symbol()))
		}
		return nil
	}

	go func() {
		select {
		case <-doneC:
			sub.Fail(domain.NewBackendError("binance", "book ticker stream", pair.Symbol(), errStreamClosed))
		case <-sub.done:
		}
	}()
	sub.watch(ctx)

	return sub, nil
}

// binanceTick converts a book ticker event. Unparsable prices become zero and fail validation.
func binanceTick(event *binance.WsBookTickerEvent) domain.PriceTick {
	ask, _ := decimal.NewFromString(event.BestAskPrice)
	bid, _ := decimal.NewFromString(event.BestBidPrice)

	return domain.PriceTick{Ask: ask, Bid: bid, Time: time.Now()}
}
