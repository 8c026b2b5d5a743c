// Command sse_load opens many subscribers on the session event stream of the
// dashboard and reports how many events they receive.
package main

import (
	"bufio"
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
}

func (c *counters) fields(elapsed time.Duration) []zap.Field {
	return []zap.Field{
		zap.Int64("connected", c.connected.Load()),
		zap.Int64("connect_errs", c.connectErrs.Load()),
		zap.Int64("stream_errs", c.streamErrs.Load()),
		zap.Int64("events", c.events.Load()),
		zap.Duration("elapsed", elapsed.Truncate(time.Second)),
	}
}

type loader struct {
	url    string
	client *http.Client
	stats  *counters
	logger *zap.Logger
}

// subscribe reads one stream until ctx ends, counting session event frames.
func (l *loader) subscribe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		l.stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Debug("connect failed", zap.Error(err))
		l.stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.stats.connectErrs.Add(1)
		return
	}
	l.stats.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				l.stats.streamErrs.Add(1)
			}
			return
		}
		// heartbeats are comments
		if strings.HasPrefix(line, "event: session") {
			l.stats.events.Add(1)
		}
	}
}

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/session/stream", "session stream URL")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent subscribers")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", time.Second, "spread subscriber starts across this window")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	l := &loader{
		url: targetURL,
		client: &http.Client{Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}},
		stats:  &counters{},
		logger: logger,
	}

	logger.Info("starting session stream load",
		zap.String("url", targetURL),
		zap.Int("conns", connections),
		zap.Duration("duration", testDuration),
		zap.Duration("ramp", rampUp))

	start := time.Now()
	interval := rampUp / time.Duration(connections)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("status", l.stats.fields(time.Since(start))...)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.subscribe(ctx)
		}()

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	wg.Wait()
	logger.Info("done", l.stats.fields(time.Since(start))...)

	if l.stats.connected.Load() == 0 {
		os.Exit(1)
	}
}
