// ABOUTME: Contract tests run against every Storage backend
// ABOUTME: Also covers the per-turn Accessor and backend selection

package state

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/alexa-bridge/internal/config"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "state", "state.db"))
	require.NoError(t, err)

	badgerDisk, err := NewBadgerStorage(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)

	badgerMem, err := NewInMemoryBadgerStorage()
	require.NoError(t, err)

	all := map[string]Storage{
		"memory":        NewMemoryStorage(),
		"sqlite":        sqlite,
		"badger":        badgerDisk,
		"badger-memory": badgerMem,
	}
	t.Cleanup(func() {
		for _, s := range all {
			s.Close()
		}
	})
	return all
}

func TestStorage_Contract(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "alexa/users/missing")
			assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

			require.NoError(t, s.Save(ctx, "alexa/users/u1", []byte(`{"turnCount":1}`)))
			got, err := s.Load(ctx, "alexa/users/u1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"turnCount":1}`, string(got))

			require.NoError(t, s.Save(ctx, "alexa/users/u1", []byte(`{"turnCount":2}`)))
			got, err = s.Load(ctx, "alexa/users/u1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"turnCount":2}`, string(got))

			require.NoError(t, s.Delete(ctx, "alexa/users/u1"))
			_, err = s.Load(ctx, "alexa/users/u1")
			assert.True(t, errors.Is(err, ErrNotFound))

			// Deleting a missing key is fine
			assert.NoError(t, s.Delete(ctx, "alexa/users/u1"))
		})
	}
}

func TestMemoryStorage_CopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	data := []byte("abc")
	require.NoError(t, s.Save(ctx, "k", data))
	data[0] = 'x'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, _ := s.Load(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStorage_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := KeyFor("alexa", string(rune('a'+i%26)))
			_ = s.Save(ctx, key, []byte("{}"))
			_, _ = s.Load(ctx, key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 26, s.Len())
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "alexa/users/amzn1.ask.account.X", KeyFor("alexa", "amzn1.ask.account.X"))
}

func TestAccessor_DefaultsWhenMissing(t *testing.T) {
	ctx := context.Background()
	acc := NewAccessor(NewMemoryStorage(), KeyFor("alexa", "u1"))

	rec, err := acc.Get(ctx)
	require.NoError(t, err)
	assert.False(t, rec.HasName())
	assert.Equal(t, 0, rec.TurnCount)
}

func TestAccessor_SaveChangesPersistsMutations(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	key := KeyFor("alexa", "u1")

	acc := NewAccessor(storage, key)
	rec, err := acc.Get(ctx)
	require.NoError(t, err)
	rec.DisplayName = "alice"
	rec.TurnCount = 3
	require.NoError(t, acc.SaveChanges(ctx))

	next := NewAccessor(storage, key)
	got, err := next.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Record{DisplayName: "alice", TurnCount: 3}, *got)
}

func TestAccessor_Reset(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	key := KeyFor("alexa", "u1")
	require.NoError(t, storage.Save(ctx, key, []byte(`{"displayName":"alice","turnCount":7}`)))

	acc := NewAccessor(storage, key)
	_, err := acc.Get(ctx)
	require.NoError(t, err)
	acc.Reset()
	require.NoError(t, acc.SaveChanges(ctx))

	got, err := NewAccessor(storage, key).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Record{}, *got)
}

func TestAccessor_SaveWithoutGetIsNoop(t *testing.T) {
	storage := NewMemoryStorage()
	acc := NewAccessor(storage, "k")

	require.NoError(t, acc.SaveChanges(context.Background()))
	assert.Equal(t, 0, storage.Len())
}

func TestAccessor_CorruptState(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, "k", []byte("not json")))

	_, err := NewAccessor(storage, "k").Get(ctx)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StateConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = Open(config.StateConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, s)
	s.Close()

	_, err = Open(config.StateConfig{Backend: "redis"})
	assert.Error(t, err)
}
