package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/rangebot/config"
	"github.com/vadiminshakov/rangebot/internal/services/controller"
	"github.com/vadiminshakov/rangebot/internal/services/exchange"
	"github.com/vadiminshakov/rangebot/internal/services/stream"
	"github.com/vadiminshakov/rangebot/internal/storage/lotsizes"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
)

// TradingBot runs one configured round trip on one platform.
type TradingBot struct {
	Exchange exchange.Exchange
	Stream   stream.Stream
	Config   config.Config

	lots       *lotsizes.WALStore
	logger     *zap.Logger
	publisher  controller.Publisher
	controller *controller.Controller
}

// NewTradingBot creates a new trading bot instance. lots may be nil, then default
// lot sizes are used and no metadata is fetched.
func NewTradingBot(conf config.Config, client any, lots *lotsizes.WALStore, logger *zap.Logger, publisher controller.Publisher) (*TradingBot, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var resolver exchange.LotSizeResolver
	if lots != nil {
		resolver = lots
	}

	provider, err := newServiceProvider(client, resolver, conf.PollPriceInterval, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported platform: %s", conf.Platform)
	}

	ex, err := provider.Exchange(conf.Pair)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create exchange")
	}

	return &TradingBot{
		Exchange:  ex,
		Stream:    provider.Stream(ex),
		Config:    conf,
		lots:      lots,
		logger:    logger,
		publisher: publisher,
	}, nil
}

// Run syncs symbol metadata and runs the round trip until it completes or fails.
func (b *TradingBot) Run(ctx context.Context) error {
	if b.lots != nil {
		logger := b.logger.With(zap.String("pair", b.Config.Pair.String()), zap.String("platform", b.Config.Platform))
		r := retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(500*time.Millisecond))
		lot, err := b.lots.Sync(ctx, b.Exchange, b.Config.Pair, r)
		if err != nil {
			logger.Warn("failed to sync lot size, using defaults", zap.Error(err))
		} else {
			logger.Info("lot size ready",
				zap.String("step", lot.StepSize.String()),
				zap.String("min_notional", lot.MinNotional.String()))
		}
	}

	opts := []controller.Option{controller.WithShutdownDelay(b.Config.ShutdownDelay)}
	if b.publisher != nil {
		opts = append(opts, controller.WithPublisher(b.publisher))
	}

	ctrl, err := controller.New(b.logger, b.Exchange, b.Stream, b.Config.Session(), opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create trade controller")
	}
	b.controller = ctrl

	if err := ctrl.Run(ctx); err != nil {
		return errors.Wrapf(err, "session %s on %s", b.Config.Pair.String(), b.Config.Platform)
	}

	return nil
}

// Controller returns the controller of the current run, nil before Run.
func (b *TradingBot) Controller() *controller.Controller {
	return b.controller
}
