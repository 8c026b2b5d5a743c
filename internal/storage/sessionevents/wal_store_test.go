package sessionevents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

func TestWALStore_SaveAndReplay(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Save(domain.SessionEvent{Time: now, Pair: "ETH_BTC", State: "holding", OrderID: "1"}))
	require.NoError(t, store.Save(domain.SessionEvent{Time: now, Pair: "ETH_BTC", State: "complete"}))
	assert.Equal(t, uint64(2), store.CurrentIndex())
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "holding", events[0].State)
	assert.Equal(t, "1", events[0].OrderID)
	assert.True(t, events[0].Time.Equal(now))
	assert.Equal(t, "complete", events[1].State)
}

func TestWALStore_SaveRequiresPair(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Save(domain.SessionEvent{State: "init"}), domain.ErrValidation)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}
