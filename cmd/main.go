// Command rangebot buys a pair when its ask enters a buy band and sells it once
// the bid enters a sell band. Each configured session runs one round trip.
//
// Usage:
//
//	rangebot --config config.yaml
//	rangebot --platform binance --pair ETH_BTC --buyprice 0.0399410 --sellprice 0.0399430 --percent 0.1
//	rangebot --setup
//
// Required environment variables (a .env file is loaded when present):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/rangebot/config"
	"github.com/vadiminshakov/rangebot/internal"
	"github.com/vadiminshakov/rangebot/internal/clients"
	"github.com/vadiminshakov/rangebot/internal/events"
	"github.com/vadiminshakov/rangebot/internal/setup"
	"github.com/vadiminshakov/rangebot/internal/storage/lotsizes"
	"github.com/vadiminshakov/rangebot/internal/storage/sessionevents"
	"github.com/vadiminshakov/rangebot/internal/web"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env", zap.Error(err))
	}

	if err := run(logger); err != nil {
		logger.Error("rangebot stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	configs, opts, err := config.Get()
	if err != nil {
		return err
	}

	if opts.Setup {
		path, err := setup.RunTUI()
		if err != nil {
			return err
		}
		if configs, _, err = config.Parse([]string{"--config", path}); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := events.NewSessionBroadcaster(256)
	if opts.Web {
		journal, err := sessionevents.NewWALStore(opts.EventDir)
		if err != nil {
			return err
		}
		defer journal.Close()

		past, err := journal.Events()
		if err != nil {
			logger.Warn("failed to replay session events", zap.Error(err))
		}
		feed.Restore(past)
		feed.SetJournal(journal, logger)
		defer feed.Close()
	}

	stores := make(map[string]*lotsizes.WALStore)
	defer func() {
		for dir, s := range stores {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close lot size store", zap.String("dir", dir), zap.Error(err))
			}
		}
	}()

	bots := make([]*internal.TradingBot, 0, len(configs))
	for _, conf := range configs {
		client, err := clients.New(conf.Platform, os.Getenv)
		if err != nil {
			return err
		}

		lots, ok := stores[conf.LotSizeDir]
		if !ok {
			if lots, err = lotsizes.NewWALStore(conf.LotSizeDir); err != nil {
				return err
			}
			stores[conf.LotSizeDir] = lots
		}

		bot, err := internal.NewTradingBot(conf, client, lots, logger, feed)
		if err != nil {
			return err
		}
		bots = append(bots, bot)
	}

	// sessions are independent, one failure does not stop the others
	g := new(errgroup.Group)

	if opts.Web {
		webCtx, cancelWeb := context.WithCancel(ctx)
		defer cancelWeb()
		server := web.NewServer(opts.WebAddr, feed, logger)
		go func() {
			start := server.Start
			if len(opts.WebDomains) > 0 {
				start = func(ctx context.Context) error {
					return server.StartWithAutoTLS(ctx, opts.WebDomains, opts.CertCache)
				}
			}
			if err := start(webCtx); err != nil {
				logger.Error("dashboard stopped", zap.Error(err))
			}
		}()
	}

	for _, bot := range bots {
		g.Go(func() error {
			logger.Info("session started",
				zap.String("pair", bot.Config.Pair.String()),
				zap.String("platform", bot.Config.Platform))
			return bot.Run(ctx)
		})
	}

	return g.Wait()
}
