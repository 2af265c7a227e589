package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MockStore implements MetadataStore for testing.
// It is exported so that tests in other packages can use it.
type MockStore struct {
	mu      sync.RWMutex
	data    map[string]KV
	closed  bool
	nextVer Version

	puts    int
	deletes int
}

// NewMockStore creates a new MockStore for testing.
func NewMockStore() *MockStore {
	return &MockStore{
		data:    make(map[string]KV),
		nextVer: 1,
	}
}

func (m *MockStore) Get(_ context.Context, key string) (GetResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return GetResult{}, ErrStoreClosed
	}
	kv, ok := m.data[key]
	if !ok {
		return GetResult{Exists: false}, nil
	}
	return GetResult{Value: kv.Value, Version: kv.Version, Exists: true}, nil
}

func (m *MockStore) Put(_ context.Context, key string, value []byte, opts ...PutOption) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	if expected := ExtractExpectedVersion(opts); expected != nil {
		existing, ok := m.data[key]
		if !ok && *expected != 0 {
			return 0, ErrVersionMismatch
		}
		if ok && existing.Version != *expected {
			return 0, ErrVersionMismatch
		}
	}

	ver := m.nextVer
	m.nextVer++
	m.data[key] = KV{Key: key, Value: value, Version: ver}
	m.puts++
	return ver, nil
}

func (m *MockStore) Delete(_ context.Context, key string, opts ...DeleteOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if expected := ExtractDeleteExpectedVersion(opts); expected != nil {
		existing, ok := m.data[key]
		if !ok {
			return nil // idempotent delete
		}
		if existing.Version != *expected {
			return ErrVersionMismatch
		}
	}

	delete(m.data, key)
	m.deletes++
	return nil
}

func (m *MockStore) List(_ context.Context, startKey, endKey string, limit int) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var keys []string
	for k := range m.data {
		if endKey == "" {
			// When endKey is empty, treat startKey as a prefix.
			if strings.HasPrefix(k, startKey) {
				keys = append(keys, k)
			}
		} else {
			// Range query: [startKey, endKey)
			if k >= startKey && k < endKey {
				keys = append(keys, k)
			}
		}
	}

	// Sort lexicographically to match the MetadataStore contract.
	sort.Strings(keys)

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	result := make([]KV, len(keys))
	for i, k := range keys {
		result[i] = m.data[k]
	}
	return result, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PutCount returns the number of successful Put calls (for testing).
func (m *MockStore) PutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// DeleteCount returns the number of successful Delete calls (for testing).
func (m *MockStore) DeleteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes
}

// Ensure MockStore implements MetadataStore
var _ MetadataStore = (*MockStore)(nil)
