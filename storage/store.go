// Package storage is the object store consumed by the pipeline: flat keys, whole-object
// reads and writes, last-write-wins, no transactions or versioning.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Content types written by the pipeline.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

// ObjectStore is the narrow blob interface the pipeline depends on.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Pinger is implemented by stores that can verify reachability before a run.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotFoundError is returned by Get for a missing key.
type NotFoundError struct {
	Key string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.Key)
}

// ReadOptional returns nil content for a missing key instead of an error.
func ReadOptional(ctx context.Context, store ObjectStore, key string) ([]byte, bool, error) {
	ok, err := store.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("exists %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

// MemoryStore is an in-process ObjectStore used by tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	puts    int
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Exists reports whether key is present.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Get returns a copy of the object.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// Put stores a copy of data.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: buf, contentType: contentType}
	m.puts++
	return nil
}

// List returns keys with the prefix, sorted.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// PutCount is the number of writes so far.
func (m *MemoryStore) PutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
