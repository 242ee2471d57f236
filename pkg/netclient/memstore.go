package netclient

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sealbox/sealbox/pkg/types"
)

// MemoryStore is a thread-safe in-memory ChunkStore. It backs the test suite
// and quick-start examples: operation counters make deduplication visible,
// and the fault hooks let tests inject transient or terminal failures.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[types.Hash][]byte

	putCalls uint64
	getCalls uint64
	hasCalls uint64

	// FailPut and FailGet, when set, run before the operation and may
	// return an error to inject. Nil return proceeds normally.
	FailPut func(address types.Hash) error
	FailGet func(address types.Hash) error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chunks: make(map[types.Hash][]byte),
	}
}

func (m *MemoryStore) Put(ctx context.Context, chunk types.Chunk) error {
	atomic.AddUint64(&m.putCalls, 1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailPut != nil {
		if err := m.FailPut(chunk.Address); err != nil {
			return err
		}
	}

	data := make([]byte, len(chunk.Data))
	copy(data, chunk.Data)

	m.mu.Lock()
	m.chunks[chunk.Address] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, address types.Hash) ([]byte, error) {
	atomic.AddUint64(&m.getCalls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FailGet != nil {
		if err := m.FailGet(address); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	data, ok := m.chunks[address]
	m.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Has(ctx context.Context, address types.Hash) (bool, error) {
	atomic.AddUint64(&m.hasCalls, 1)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.chunks[address]
	m.mu.RUnlock()
	return ok, nil
}

// Corrupt flips a bit in the stored bytes of address. Test helper for
// integrity verification; returns false if the address is unknown.
func (m *MemoryStore) Corrupt(address types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.chunks[address]
	if !ok {
		return false
	}
	data[len(data)/2] ^= 0x01
	return true
}

// Len returns the number of stored chunks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// PutCalls returns how many Put requests the store has received.
func (m *MemoryStore) PutCalls() uint64 {
	return atomic.LoadUint64(&m.putCalls)
}

// GetCalls returns how many Get requests the store has received.
func (m *MemoryStore) GetCalls() uint64 {
	return atomic.LoadUint64(&m.getCalls)
}

// HasCalls returns how many Has requests the store has received.
func (m *MemoryStore) HasCalls() uint64 {
	return atomic.LoadUint64(&m.hasCalls)
}
