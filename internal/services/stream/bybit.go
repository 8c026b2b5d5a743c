package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
	"go.uber.org/zap"
)

const (
	bybitPingInterval = 20 * time.Second
	bybitWriteTimeout = 5 * time.Second
)

// BybitStream best bid/ask from the V5 public orderbook.1 topic.
type BybitStream struct {
	url     string
	dialer  *websocket.Dialer
	retrier *retrier.Retrier
	logger  *zap.Logger
	buffer  int
}

func NewBybitStream(url string, r *retrier.Retrier, logger *zap.Logger) *BybitStream {
	if r == nil {
		r = retrier.New(retrier.WithMaxRetries(3))
	}

	return &BybitStream{
		url:     url,
		dialer:  websocket.DefaultDialer,
		retrier: r,
		logger:  logger,
		buffer:  DefaultBufferSize,
	}
}

func (b *BybitStream) Subscribe(ctx context.Context, pair domain.Pair) (*Subscription, error) {
	conn, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
		return conn, err
	})
	if err != nil {
		return nil, domain.NewBackendError("bybit", "dial stream", pair.Symbol(), err)
	}

	topic := "orderbook.1." + pair.Symbol()
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": []string{topic}}); err != nil {
		_ = conn.Close()
		return nil, domain.NewBackendError("bybit", "subscribe", pair.Symbol(), err)
	}

	sub := NewSubscription(b.logger, b.buffer, nil)
	var writeMu sync.Mutex
	sub.stop = func() error {
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(bybitWriteTimeout))
		writeMu.Unlock()
		return conn.Close()
	}

	go b.readLoop(conn, sub, pair)
	go func() {
		ticker := time.NewTicker(bybitPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sub.done:
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(bybitWriteTimeout))
				err := conn.WriteJSON(map[string]string{"op": "ping"})
				writeMu.Unlock()
				if err != nil {
					sub.Fail(domain.NewBackendError("bybit", "ping", pair.Symbol(), err))
					return
				}
			}
		}
	}()
	sub.watch(ctx)

	return sub, nil
}

func (b *BybitStream) readLoop(conn *websocket.Conn, sub *Subscription, pair domain.Pair) {
	var last domain.PriceTick
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !sub.closed() {
				sub.Fail(domain.NewBackendError("bybit", "read stream", pair.Symbol(), err))
			}
			return
		}

		tick, ok, err := parseBybitMessage(message, last)
		if err != nil {
			sub.Fail(err)
			continue
		}
		if !ok {
			continue
		}
		last = tick
		sub.Publish(tick)
	}
}

// parseBybitMessage extracts best bid/ask from an orderbook.1 push. Sides missing
// from a delta keep their previous value. ok is false for control frames.
func parseBybitMessage(message []byte, last domain.PriceTick) (domain.PriceTick, bool, error) {
	if op := gjson.GetBytes(message, "op"); op.Exists() {
		if op.String() == "subscribe" && !gjson.GetBytes(message, "success").Bool() {
			return domain.PriceTick{}, false, domain.NewBackendError("bybit", "subscribe", "",
				errors.New(gjson.GetBytes(message, "ret_msg").String()))
		}
		return domain.PriceTick{}, false, nil
	}

	if !strings.HasPrefix(gjson.GetBytes(message, "topic").String(), "orderbook.") {
		return domain.PriceTick{}, false, nil
	}

	tick := last
	data := gjson.GetBytes(message, "data")

	if bid := data.Get("b.0.0"); bid.Exists() {
		price, err := decimal.NewFromString(bid.String())
		if err != nil {
			return domain.PriceTick{}, false, domain.NewValidationError("malformed bybit bid %q", bid.String())
		}
		tick.Bid = price
	}
	if ask := data.Get("a.0.0"); ask.Exists() {
		price, err := decimal.NewFromString(ask.String())
		if err != nil {
			return domain.PriceTick{}, false, domain.NewValidationError("malformed bybit ask %q", ask.String())
		}
		tick.Ask = price
	}

	if ts := gjson.GetBytes(message, "ts"); ts.Exists() {
		tick.Time = time.UnixMilli(ts.Int())
	} else {
		tick.Time = time.Now()
	}

	// wait for both sides before the first tick
	if tick.Ask.IsZero() || tick.Bid.IsZero() {
		return domain.PriceTick{}, false, nil
	}

	return tick, true, nil
}
