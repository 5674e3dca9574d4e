package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const cacheKeyRunPrefix = "pipeline:done:"

// RunCache remembers items already written during one run so that a retry within
// that run is a no-op. A cache belongs to exactly one run; a later run on the same
// day starts empty. Safe for concurrent use.
type RunCache interface {
	Done(ctx context.Context, entity, item string) bool
	MarkDone(ctx context.Context, entity, item string)
}

func runKey(runID, entity, item string) string {
	return fmt.Sprintf("%s%s:%s:%s", cacheKeyRunPrefix, runID, entity, item)
}

// MemoryRunCache is the in-process RunCache.
type MemoryRunCache struct {
	mu   sync.RWMutex
	done map[string]struct{}
}

// NewMemoryRunCache creates an empty cache.
func NewMemoryRunCache() *MemoryRunCache {
	return &MemoryRunCache{done: make(map[string]struct{})}
}

func memKey(entity, item string) string { return entity + ":" + item }

// Done reports whether the item was marked.
func (c *MemoryRunCache) Done(_ context.Context, entity, item string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.done[memKey(entity, item)]
	return ok
}

// MarkDone records the item.
func (c *MemoryRunCache) MarkDone(_ context.Context, entity, item string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[memKey(entity, item)] = struct{}{}
}

// Len is the number of marked items.
func (c *MemoryRunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.done)
}

// KeyStore is the subset of redis the shared run cache needs.
type KeyStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// RedisRunCache shares one run's cache across processes. Keys carry the run ID so
// separate runs never see each other's marks. Redis errors degrade to a local
// MemoryRunCache so the pipeline never blocks on cache availability.
type RedisRunCache struct {
	store    KeyStore
	runID    string
	ttl      time.Duration
	fallback *MemoryRunCache
}

// NewRedisRunCache creates a shared cache for runID with the given key TTL.
func NewRedisRunCache(store KeyStore, runID string, ttl time.Duration) *RedisRunCache {
	return &RedisRunCache{store: store, runID: runID, ttl: ttl, fallback: NewMemoryRunCache()}
}

// Done reports whether the item was marked in this run.
func (c *RedisRunCache) Done(ctx context.Context, entity, item string) bool {
	if c.fallback.Done(ctx, entity, item) {
		return true
	}
	ok, err := c.store.Exists(ctx, runKey(c.runID, entity, item))
	if err != nil {
		log.Debug().Err(err).Msg("run cache lookup failed")
		return false
	}
	return ok
}

// MarkDone records the item locally and in redis.
func (c *RedisRunCache) MarkDone(ctx context.Context, entity, item string) {
	c.fallback.MarkDone(ctx, entity, item)
	if _, err := c.store.SetNX(ctx, runKey(c.runID, entity, item), time.Now().Unix(), c.ttl); err != nil {
		log.Warn().Err(err).Msgf("⚠️  Failed to mark %s/%s in run cache", entity, item)
	}
}

// NewRunCache creates the cache for one run, backed by redis when available.
func NewRunCache(redis *RedisClient, runID string, ttl time.Duration) RunCache {
	if redis == nil {
		return NewMemoryRunCache()
	}
	return NewRedisRunCache(redis, runID, ttl)
}
