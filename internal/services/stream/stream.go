// Package stream delivers best bid/ask ticks from exchange feeds to a single consumer.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"go.uber.org/zap"
)

// DefaultBufferSize ticks kept while the consumer is busy. When full the oldest tick is dropped.
const DefaultBufferSize = 16

// Stream opens price subscriptions for a pair.
type Stream interface {
	Subscribe(ctx context.Context, pair domain.Pair) (*Subscription, error)
}

// Subscription handle of one active feed. Owned by a single consumer.
type Subscription struct {
	ticks     chan domain.PriceTick
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	failed    atomic.Bool
	stop      func() error
	logger    *zap.Logger
}

// NewSubscription creates a handle buffering up to buffer ticks. stop, if set, runs once on Close.
func NewSubscription(logger *zap.Logger, buffer int, stop func() error) *Subscription {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	return &Subscription{
		ticks:  make(chan domain.PriceTick, buffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		stop:   stop,
		logger: logger,
	}
}

// Ticks delivers ticks in feed order. The channel is never closed; watch Done.
func (s *Subscription) Ticks() <-chan domain.PriceTick { return s.ticks }

// Err reports the first fatal feed failure.
func (s *Subscription) Err() <-chan error { return s.errs }

// Done is closed once the subscription is released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the vendor connection. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.closeErr = s.stop()
		}
	})

	return s.closeErr
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Publish hands tick to the consumer without blocking the feed. Invalid ticks are reported on Err.
// A full buffer drops its oldest tick. Ticks after a failure are ignored.
func (s *Subscription) Publish(tick domain.PriceTick) {
	if s.closed() || s.failed.Load() {
		return
	}
	if err := tick.Validate(); err != nil {
		s.Fail(err)
		return
	}

	for {
		select {
		case s.ticks <- tick:
			return
		case <-s.done:
			return
		default:
		}

		select {
		case stale := <-s.ticks:
			s.logger.Debug("tick buffer full, dropping oldest tick",
				zap.String("ask", stale.Ask.String()),
				zap.String("bid", stale.Bid.String()))
		default:
		}
	}
}

// Fail reports err unless a failure is already pending or the subscription is closed.
func (s *Subscription) Fail(err error) {
	if err == nil || s.closed() {
		return
	}
	s.failed.Store(true)

	select {
	case s.errs <- err:
	default:
		s.logger.Debug("stream error dropped, one already pending", zap.Error(err))
	}
}

// watch closes the subscription when ctx ends.
func (s *Subscription) watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Close(); err != nil {
				s.logger.Warn("failed to release stream", zap.Error(err))
			}
		case <-s.done:
		}
	}()
}

var errStreamClosed = errors.New("price stream closed by remote")
