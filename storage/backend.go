package storage

import (
	"context"
	"sort"
	"sync"
)

// Backend persists raw JSON records keyed by collection and id.
//
// Implementations return ErrKeyExists from Create when the key is taken and
// ErrKeyNotFound from Get for a missing key. Delete of a missing key is not
// an error.
type Backend interface {
	Create(ctx context.Context, c Collection, key string, value []byte) error
	Put(ctx context.Context, c Collection, key string, value []byte) error
	Get(ctx context.Context, c Collection, key string) ([]byte, error)
	Delete(ctx context.Context, c Collection, key string) error
	List(ctx context.Context, c Collection) ([][]byte, error)
	Close() error
}

// Indexer is implemented by backends that can answer secondary index
// lookups without a full scan.
type Indexer interface {
	Lookup(ctx context.Context, c Collection, field, value string) ([][]byte, error)
}

// MemoryBackend keeps records in process memory. Used for tests and
// ephemeral runs.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[Collection]map[string][]byte
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	data := make(map[Collection]map[string][]byte, len(Collections))
	for _, c := range Collections {
		data[c] = make(map[string][]byte)
	}
	return &MemoryBackend{data: data}
}

func (b *MemoryBackend) Create(_ context.Context, c Collection, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.bucket(c)
	if _, ok := bucket[key]; ok {
		return ErrKeyExists
	}
	bucket[key] = clone(value)
	return nil
}

func (b *MemoryBackend) Put(_ context.Context, c Collection, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bucket(c)[key] = clone(value)
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, c Collection, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[c][key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return clone(v), nil
}

func (b *MemoryBackend) Delete(_ context.Context, c Collection, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data[c], key)
	return nil
}

// List returns values ordered by key.
func (b *MemoryBackend) List(_ context.Context, c Collection) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bucket := b.data[c]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(bucket[k]))
	}
	return out, nil
}

func (b *MemoryBackend) Close() error { return nil }

// bucket must be called with the write lock held.
func (b *MemoryBackend) bucket(c Collection) map[string][]byte {
	m, ok := b.data[c]
	if !ok {
		m = make(map[string][]byte)
		b.data[c] = m
	}
	return m
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
