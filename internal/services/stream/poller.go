package stream

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
	"go.uber.org/zap"
)

// DefaultPollInterval used when no interval is configured.
const DefaultPollInterval = 5 * time.Second

// Pricer returns the current price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// Poller turns periodic price queries into ticks with ask = bid = price.
// Used by backends without a book ticker feed.
type Poller struct {
	pricer   Pricer
	interval time.Duration
	retrier  *retrier.Retrier
	logger   *zap.Logger
	buffer   int
}

func NewPoller(pricer Pricer, interval time.Duration, r *retrier.Retrier, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if r == nil {
		r = retrier.New(retrier.WithMaxRetries(3))
	}

	return &Poller{pricer: pricer, interval: interval, retrier: r, logger: logger, buffer: DefaultBufferSize}
}

func (p *Poller) Subscribe(ctx context.Context, pair domain.Pair) (*Subscription, error) {
	sub := NewSubscription(p.logger, p.buffer, nil)

	pollCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	sub.stop = func() error {
		cancel()
		<-finished
		return nil
	}

	go func() {
		defer close(finished)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			price, err := retrier.DoWithData(p.retrier, pollCtx, func(ctx context.Context) (decimal.Decimal, error) {
				return p.pricer.GetPrice(ctx, pair)
			})
			if err != nil {
				if pollCtx.Err() != nil {
					return
				}
				sub.Fail(err)
				return
			}
			sub.Publish(domain.PriceTick{Ask: price, Bid: price, Time: time.Now()})

			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	sub.watch(ctx)

	return sub, nil
}
