package netclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sealbox/sealbox/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testClient(store ChunkStore) *Client {
	return New(store, Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Logger:      quietLogger(),
	})
}

func TestClient_PutGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	client := testClient(store)
	ctx := context.Background()

	chunk := types.NewChunk([]byte("some ciphertext bytes"))
	require.NoError(t, client.Put(ctx, chunk))

	data, err := client.Get(ctx, chunk.Address)
	require.NoError(t, err)
	assert.Equal(t, chunk.Data, data)
}

func TestClient_GetNotFound(t *testing.T) {
	client := testClient(NewMemoryStore())

	_, err := client.Get(context.Background(), types.HashData([]byte("missing")))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestClient_PutDeduplicates(t *testing.T) {
	store := NewMemoryStore()
	client := testClient(store)
	ctx := context.Background()

	chunk := types.NewChunk([]byte("dedup me"))
	require.NoError(t, client.Put(ctx, chunk))
	require.NoError(t, client.Put(ctx, chunk))
	require.NoError(t, client.Put(ctx, chunk))

	assert.Equal(t, uint64(1), store.PutCalls(), "repeat puts must be skipped via existence check")
}

func TestClient_RetriesTransientPut(t *testing.T) {
	store := NewMemoryStore()
	var failures int
	var mu sync.Mutex
	store.FailPut = func(types.Hash) error {
		mu.Lock()
		defer mu.Unlock()
		if failures < 2 {
			failures++
			return &types.TransientError{Err: errors.New("store briefly unavailable")}
		}
		return nil
	}

	client := testClient(store)
	chunk := types.NewChunk([]byte("eventually stored"))
	require.NoError(t, client.Put(context.Background(), chunk))
	assert.Equal(t, uint64(3), store.PutCalls())
}

func TestClient_ExhaustsAttempts(t *testing.T) {
	store := NewMemoryStore()
	store.FailGet = func(types.Hash) error {
		return &types.TransientError{Err: errors.New("still unavailable")}
	}
	client := testClient(store)

	chunk := types.NewChunk([]byte("unreachable"))
	require.NoError(t, client.Put(context.Background(), chunk))

	_, err := client.Get(context.Background(), chunk.Address)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
	assert.Equal(t, uint64(3), store.GetCalls())
}

func TestClient_TerminalErrorNotRetried(t *testing.T) {
	store := NewMemoryStore()
	terminal := errors.New("quota exceeded")
	store.FailPut = func(types.Hash) error { return terminal }
	client := testClient(store)

	err := client.Put(context.Background(), types.NewChunk([]byte("rejected")))
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, uint64(1), store.PutCalls())
}

func TestClient_GetDetectsCorruption(t *testing.T) {
	store := NewMemoryStore()
	client := testClient(store)
	ctx := context.Background()

	chunk := types.NewChunk([]byte("integrity protected payload"))
	require.NoError(t, client.Put(ctx, chunk))
	require.True(t, store.Corrupt(chunk.Address))

	_, err := client.Get(ctx, chunk.Address)
	var corrupt *types.CorruptChunkError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, chunk.Address, corrupt.Address)
}

func TestClient_ContextCancelStopsRetries(t *testing.T) {
	store := NewMemoryStore()
	store.FailGet = func(types.Hash) error {
		return &types.TransientError{Err: errors.New("unavailable")}
	}
	client := New(store, Config{
		MaxAttempts: 10,
		BaseBackoff: 50 * time.Millisecond,
		Logger:      quietLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, types.HashData([]byte("x")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ConcurrentPutsCoalesce(t *testing.T) {
	store := NewMemoryStore()
	client := testClient(store)
	chunk := types.NewChunk([]byte("stampede target"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, client.Put(context.Background(), chunk))
		}()
	}
	wg.Wait()

	// Coalescing plus the existence check keep actual store writes to one.
	assert.Equal(t, uint64(1), store.PutCalls())
	assert.Equal(t, 1, store.Len())
}
