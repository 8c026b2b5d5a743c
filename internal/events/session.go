package events

import (
	"sync"

	"github.com/vadiminshakov/rangebot/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultHistory = 128
	journalQueue   = 256
)

// Journal persists published events.
type Journal interface {
	Save(event domain.SessionEvent) error
}

// SessionBroadcaster fans out session events to all subscribers via buffered channels
// and keeps the latest events so late subscribers can catch up.
type SessionBroadcaster struct {
	mu      sync.RWMutex
	subs    map[chan domain.SessionEvent]struct{}
	buffer  int
	history []domain.SessionEvent
	limit   int
	journal chan domain.SessionEvent
	writer  sync.WaitGroup
	logger  *zap.Logger
}

// NewSessionBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewSessionBroadcaster(buffer int) *SessionBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &SessionBroadcaster{
		subs:   make(map[chan domain.SessionEvent]struct{}),
		buffer: buffer,
		limit:  defaultHistory,
	}
}

// SetJournal persists every subsequently published event to j on a background
// writer. Save errors are logged. Call Close to flush pending events.
func (b *SessionBroadcaster) SetJournal(j Journal, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b.Close()

	queue := make(chan domain.SessionEvent, journalQueue)
	b.mu.Lock()
	b.journal = queue
	b.logger = logger
	b.mu.Unlock()

	b.writer.Add(1)
	go func() {
		defer b.writer.Done()
		for e := range queue {
			if err := j.Save(e); err != nil {
				logger.Warn("failed to journal session event", zap.String("pair", e.Pair), zap.Error(err))
			}
		}
	}()
}

// Close stops the journal writer after it saved every queued event.
func (b *SessionBroadcaster) Close() {
	b.mu.Lock()
	if b.journal != nil {
		close(b.journal)
		b.journal = nil
	}
	b.mu.Unlock()

	b.writer.Wait()
}

// Restore seeds the retained history, e.g. from a journal replay.
func (b *SessionBroadcaster) Restore(events []domain.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(append([]domain.SessionEvent(nil), events...), b.history...)
	if len(b.history) > b.limit {
		b.history = b.history[len(b.history)-b.limit:]
	}
}

// Publish sends the event to all subscribers, dropping it for a slow reader.
func (b *SessionBroadcaster) Publish(e domain.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, e)
	if len(b.history) > b.limit {
		b.history = b.history[len(b.history)-b.limit:]
	}

	if b.journal != nil {
		select {
		case b.journal <- e:
		default:
			b.logger.Warn("journal queue full, event not persisted", zap.String("pair", e.Pair))
		}
	}

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Recent returns a copy of the retained events, oldest first.
func (b *SessionBroadcaster) Recent() []domain.SessionEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.SessionEvent, len(b.history))
	copy(out, b.history)
	return out
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *SessionBroadcaster) Subscribe() chan domain.SessionEvent {
	ch := make(chan domain.SessionEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *SessionBroadcaster) Unsubscribe(ch chan domain.SessionEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
