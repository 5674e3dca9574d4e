package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapKeyStore stands in for a redis server shared by several processes.
type mapKeyStore struct {
	mu   sync.Mutex
	keys map[string]interface{}
	err  error
}

func newMapKeyStore() *mapKeyStore {
	return &mapKeyStore{keys: make(map[string]interface{})}
}

func (m *mapKeyStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.keys[key]
	return ok, nil
}

func (m *mapKeyStore) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value
	return true, nil
}

func TestMemoryRunCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRunCache()

	assert.False(t, c.Done(ctx, "ohlcv", "BBCA"))
	c.MarkDone(ctx, "ohlcv", "BBCA")
	assert.True(t, c.Done(ctx, "ohlcv", "BBCA"))

	assert.False(t, c.Done(ctx, "ohlcv", "BBRI"), "different item")
	assert.False(t, c.Done(ctx, "bidask", "BBCA"), "different entity")
}

func TestMemoryRunCacheConcurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRunCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("C%02d", i)
			c.MarkDone(ctx, "ohlcv", code)
			_ = c.Done(ctx, "ohlcv", code)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}

func TestSharedRunCacheIsScopedToRun(t *testing.T) {
	ctx := context.Background()
	shared := newMapKeyStore()

	morning := NewRedisRunCache(shared, "run-1", time.Hour)
	morning.MarkDone(ctx, "ohlcv", "BBCA")
	assert.True(t, morning.Done(ctx, "ohlcv", "BBCA"))

	// another process resuming the same run sees the mark
	resumed := NewRedisRunCache(shared, "run-1", time.Hour)
	assert.True(t, resumed.Done(ctx, "ohlcv", "BBCA"))

	// a later run on the same day starts clean
	afternoon := NewRedisRunCache(shared, "run-2", time.Hour)
	assert.False(t, afternoon.Done(ctx, "ohlcv", "BBCA"))

	require.Contains(t, shared.keys, "pipeline:done:run-1:ohlcv:BBCA")
}

func TestSharedRunCacheDegradesToLocal(t *testing.T) {
	ctx := context.Background()
	shared := newMapKeyStore()
	shared.err = errors.New("connection refused")

	c := NewRedisRunCache(shared, "run-1", time.Hour)
	assert.False(t, c.Done(ctx, "ohlcv", "BBCA"))
	c.MarkDone(ctx, "ohlcv", "BBCA")
	assert.True(t, c.Done(ctx, "ohlcv", "BBCA"))
}

func TestNewRunCacheWithoutRedis(t *testing.T) {
	_, ok := NewRunCache(nil, "run-1", 0).(*MemoryRunCache)
	assert.True(t, ok)
}
