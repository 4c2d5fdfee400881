package storage_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/steamrelay/storage"
	bboltstorage "github.com/jmcleod/steamrelay/storage/bbolt"
	"github.com/jmcleod/steamrelay/storage/memory"
)

// eventLogTests runs the common suite against any EventLog implementation.
func eventLogTests(t *testing.T, log storage.EventLog) {
	t.Helper()

	events, total, err := log.List(10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, total)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, log.Append(storage.Event{
			ID:        fmt.Sprintf("e%d", i),
			Type:      "account_login_success",
			Account:   "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	t.Run("NewestFirst", func(t *testing.T) {
		events, total, err := log.List(3, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, events, 3)
		assert.Equal(t, "e4", events[0].ID)
		assert.Equal(t, "e2", events[2].ID)
		assert.True(t, events[0].CreatedAt.Equal(base.Add(4*time.Second)))
	})

	t.Run("Offset", func(t *testing.T) {
		events, _, err := log.List(10, 3)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e1", events[0].ID)
		assert.Equal(t, "e0", events[1].ID)
	})

	t.Run("OffsetPastEnd", func(t *testing.T) {
		events, total, err := log.List(10, 50)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Equal(t, 5, total)
	})
}

func TestMemoryEventLog(t *testing.T) {
	log := memory.NewEventLog()
	eventLogTests(t, log)
	require.NoError(t, log.Close())
	assert.ErrorIs(t, log.Append(storage.Event{ID: "late"}), storage.ErrClosed)
}

func TestBBoltEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	log, err := bboltstorage.NewEventLogFromFile(path, nil)
	require.NoError(t, err)
	eventLogTests(t, log)
	require.NoError(t, log.Close())

	// Events survive a reopen.
	reopened, err := bboltstorage.NewEventLogFromFile(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	events, total, err := reopened.List(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, events, 1)
	assert.Equal(t, "e4", events[0].ID)
}

func TestBBoltEventLogReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	log, err := bboltstorage.NewEventLogFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, log.Append(storage.Event{ID: "e0", Type: "account_logout"}))
	require.NoError(t, log.Close())

	ro, err := bboltstorage.NewEventLogFromFile(path, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	require.NoError(t, err)
	defer ro.Close()
	events, total, err := ro.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "e0", events[0].ID)
	assert.Error(t, ro.Append(storage.Event{ID: "e1"}))
}

func TestBBoltEventLogReadOnlyEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ro, err := bboltstorage.NewEventLogFromFile(path, &bolt.Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	events, total, err := ro.List(10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, total)
}
