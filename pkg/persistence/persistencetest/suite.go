// Package persistencetest holds the behavioural tests every IAttemptPersistence
// backend must pass.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store
type Factory func(t *testing.T) persistence.IAttemptPersistence

// RunSuite runs the shared attempt store tests against a backend
func RunSuite(t *testing.T, newStore Factory) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		record := &persistence.AttemptRecord{
			AttemptID:    "attempt-1",
			State:        "awaiting_approval",
			PublicKeyHex: "0xabcdef",
			Token:        "abc",
			PollCount:    2,
			CreatedAt:    1000,
			UpdatedAt:    1500,
		}
		require.NoError(t, store.SaveAttempt(record))

		loaded, err := store.LoadAttempt("attempt-1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, record, loaded)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		loaded, err := store.LoadAttempt("missing")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveNil", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		err := store.SaveAttempt(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil AttemptRecord")
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{AttemptID: "a", State: "requesting", CreatedAt: 1}))
		require.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{AttemptID: "a", State: "approved", Fid: 123, CreatedAt: 1}))

		loaded, err := store.LoadAttempt("a")
		require.NoError(t, err)
		assert.Equal(t, "approved", loaded.State)
		assert.Equal(t, uint64(123), loaded.Fid)

		all, err := store.ListAttempts()
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ListSortedByCreatedAt", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		for _, created := range []int64{30, 10, 20} {
			require.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{
				AttemptID: fmt.Sprintf("attempt-%d", created),
				State:     "idle",
				CreatedAt: created,
			}))
		}

		all, err := store.ListAttempts()
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, int64(10), all[0].CreatedAt)
		assert.Equal(t, int64(20), all[1].CreatedAt)
		assert.Equal(t, int64(30), all[2].CreatedAt)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		all, err := store.ListAttempts()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{AttemptID: "gone", CreatedAt: 1}))
		require.NoError(t, store.DeleteAttempt("gone"))
		require.NoError(t, store.DeleteAttempt("gone"))

		loaded, err := store.LoadAttempt("gone")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		all, err := store.ListAttempts()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ReturnedRecordsAreDetached", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		record := &persistence.AttemptRecord{AttemptID: "a", Token: "abc", CreatedAt: 1}
		require.NoError(t, store.SaveAttempt(record))
		record.Token = "mutated"

		loaded, err := store.LoadAttempt("a")
		require.NoError(t, err)
		assert.Equal(t, "abc", loaded.Token)
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.SaveAttempt(&persistence.AttemptRecord{
					AttemptID: fmt.Sprintf("concurrent-%d", i),
					CreatedAt: int64(i + 1),
				}))
			}(i)
		}
		wg.Wait()

		all, err := store.ListAttempts()
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("HealthCheckAndClose", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.HealthCheck())
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		assert.Error(t, store.HealthCheck())
		assert.Error(t, store.SaveAttempt(&persistence.AttemptRecord{AttemptID: "x"}))
		_, err := store.LoadAttempt("x")
		assert.Error(t, err)
		_, err = store.ListAttempts()
		assert.Error(t, err)
		assert.Error(t, store.DeleteAttempt("x"))
	})
}
