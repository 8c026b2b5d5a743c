package sessionevents

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

const (
	defaultEventDir   = "./wal/sessions"
	eventSegmentLimit = 1000
	eventMaxSegments  = 100
	eventKeyPrefix    = "session_event_"
)

// WALStore journals session events so the dashboard can show them after a restart.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed event journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultEventDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "session_",
		SegmentThreshold: eventSegmentLimit,
		MaxSegments:      eventMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init session event WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the event. The event pair is required.
func (s *WALStore) Save(event domain.SessionEvent) error {
	if event.Pair == "" {
		return domain.NewValidationError("session event pair is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal session event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, eventKeyPrefix+event.Pair, payload)
}

// Events returns the journaled events, oldest first.
func (s *WALStore) Events() ([]domain.SessionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SessionEvent
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, eventKeyPrefix) {
			continue
		}
		var event domain.SessionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrapf(err, "decode session event %s", msg.Key)
		}
		out = append(out, event)
	}

	return out, nil
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
