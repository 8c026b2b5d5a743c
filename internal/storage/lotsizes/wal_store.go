// Package lotsizes persists per-symbol lot size metadata between runs.
package lotsizes

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/rangebot/internal/domain"
	"github.com/vadiminshakov/rangebot/pkg/retrier"
)

const (
	defaultLotSizeDir  = "./wal/lotsizes"
	lotSizeSegmentSize = 1000
	lotSizeMaxSegments = 100
	lotSizeKeyPrefix   = "lotsize_"
)

// SymbolInfoFetcher loads symbol metadata from an exchange.
type SymbolInfoFetcher interface {
	GetSymbolInfo(ctx context.Context, pair domain.Pair) (domain.SymbolInfo, error)
}

// WALStore keeps lot sizes in a WAL and serves them from an in-memory index.
type WALStore struct {
	wal     *gowal.Wal
	mu      sync.RWMutex
	entries map[string]domain.LotSize
}

// NewWALStore opens the WAL under dir and replays it. Later records win.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultLotSizeDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "lotsize_",
		SegmentThreshold: lotSizeSegmentSize,
		MaxSegments:      lotSizeMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init lot size WAL")
	}

	entries := make(map[string]domain.LotSize)
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, lotSizeKeyPrefix) {
			continue
		}

		var lot domain.LotSize
		if err := json.Unmarshal(msg.Value, &lot); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode lot size record %s", msg.Key)
		}
		entries[lot.Symbol] = lot
	}

	return &WALStore{wal: wal, entries: entries}, nil
}

// Lookup returns the stored lot size of symbol.
func (s *WALStore) Lookup(symbol string) (domain.LotSize, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, ok := s.entries[symbol]

	return lot, ok
}

// Resolve returns the stored lot size of symbol or the default one.
func (s *WALStore) Resolve(symbol string) domain.LotSize {
	if lot, ok := s.Lookup(symbol); ok {
		return lot
	}

	return domain.DefaultLotSize(symbol)
}

// Put appends lot to the WAL and updates the index.
func (s *WALStore) Put(lot domain.LotSize) error {
	if lot.Symbol == "" {
		return domain.NewValidationError("lot size symbol is required")
	}

	payload, err := json.Marshal(lot)
	if err != nil {
		return errors.Wrap(err, "marshal lot size")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.Write(s.wal.CurrentIndex()+1, lotSizeKeyPrefix+lot.Symbol, payload); err != nil {
		return errors.Wrapf(err, "write lot size for %s", lot.Symbol)
	}
	s.entries[lot.Symbol] = lot

	return nil
}

// Sync fetches metadata of pair from the exchange when the store has no entry for it.
// Read-only calls are retried with r.
func (s *WALStore) Sync(ctx context.Context, fetcher SymbolInfoFetcher, pair domain.Pair, r *retrier.Retrier) (domain.LotSize, error) {
	if lot, ok := s.Lookup(pair.Symbol()); ok {
		return lot, nil
	}

	info, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (domain.SymbolInfo, error) {
		info, err := fetcher.GetSymbolInfo(ctx, pair)
		if err != nil && domain.IsClassified(err) && !errors.Is(err, domain.ErrBackend) {
			return info, retrier.Permanent(err)
		}
		return info, err
	})
	if err != nil {
		return domain.DefaultLotSize(pair.Symbol()), errors.Wrapf(err, "sync lot size for %s", pair.Symbol())
	}

	lot := info.LotSize
	lot.Symbol = pair.Symbol()
	if err := s.Put(lot); err != nil {
		return lot, err
	}

	return lot, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
