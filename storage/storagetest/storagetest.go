// Package storagetest holds the conformance suite every storage.KeyStore
// backend is run against.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sks/storage"
)

// Run exercises the KeyStore contract. newStore must return an empty store;
// the suite closes it.
func Run(t *testing.T, newStore func(t *testing.T) storage.KeyStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "t:realm:tok", "alice\npam\n"))
		got, err := s.Get(ctx, "t:realm:tok")
		require.NoError(t, err)
		assert.Equal(t, "alice\npam\n", got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		_, err := s.Get(ctx, "no-such-key")
		require.ErrorIs(t, err, storage.ErrNotFound)
		assert.False(t, storage.IsFault(err))
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "ut:realm:alice", "tok-1"))
		require.NoError(t, s.Put(ctx, "ut:realm:alice", "tok-2"))
		got, err := s.Get(ctx, "ut:realm:alice")
		require.NoError(t, err)
		assert.Equal(t, "tok-2", got)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "empty", ""))
		got, err := s.Get(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "gone", "v"))
		require.NoError(t, s.Remove(ctx, "gone"))
		_, err := s.Get(ctx, "gone")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("RemoveMissing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Remove(ctx, "never-existed"))
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "a:1", "one"))
		require.NoError(t, s.Put(ctx, "a:10", "ten"))
		require.NoError(t, s.Remove(ctx, "a:1"))
		got, err := s.Get(ctx, "a:10")
		require.NoError(t, err)
		assert.Equal(t, "ten", got)
	})

	t.Run("Unicode", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, "ut:r:jürgen", "tök"))
		got, err := s.Get(ctx, "ut:r:jürgen")
		require.NoError(t, err)
		assert.Equal(t, "tök", got)
	})

	t.Run("BinaryKeys", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for _, key := range []string{"\xff", "a\x00b", "session:r:\xfe\x00"} {
			_, err := s.Get(ctx, key)
			require.ErrorIs(t, err, storage.ErrNotFound, "%q", key)

			require.NoError(t, s.Put(ctx, key, "v\x00\xff"), "%q", key)
			got, err := s.Get(ctx, key)
			require.NoError(t, err, "%q", key)
			assert.Equal(t, "v\x00\xff", got, "%q", key)

			require.NoError(t, s.Remove(ctx, key), "%q", key)
			_, err = s.Get(ctx, key)
			assert.ErrorIs(t, err, storage.ErrNotFound, "%q", key)
		}

		require.NoError(t, s.Put(ctx, "a\x00b", "x"))
		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, storage.ErrNotFound, "NUL does not truncate keys")
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k:%d", i)
				assert.NoError(t, s.Put(ctx, key, key))
				got, err := s.Get(ctx, key)
				assert.NoError(t, err)
				assert.Equal(t, key, got)
			}(i)
		}
		wg.Wait()
	})

	t.Run("ClosedStoreFaults", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())

		_, err := s.Get(ctx, "k")
		assertFault(t, err)
		assertFault(t, s.Put(ctx, "k", "v"))
		assertFault(t, s.Remove(ctx, "k"))
	})
}

func assertFault(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var se *storage.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *storage.StoreError, got %T: %v", err, err)
	}
}
