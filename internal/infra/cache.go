// Package infra provides shared infrastructure for the wikiclone server:
// an in-process LRU cache with per-entry TTL.
package infra

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Cache size limits to prevent unbounded memory growth
const (
	DefaultMaxCacheEntries = 1000            // Maximum number of cache entries
	DefaultCacheCleanup    = 5 * time.Minute // How often to run cache cleanup
)

// entry holds cached data with expiration and LRU tracking
type entry[V any] struct {
	data       V
	expiresAt  time.Time
	accessedAt atomic.Int64 // unix nanos, for LRU eviction
}

// Cache is an LRU cache with TTL support. Expired entries are dropped on
// read and by a background sweep; capacity overflow evicts the least
// recently read entries.
type Cache[V any] struct {
	entries    sync.Map // key (string) -> *entry[V]
	count      atomic.Int64
	maxEntries int64
	mu         sync.Mutex // serializes eviction passes

	onEvict func(n int)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// CacheOption configures a Cache
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	cleanupInterval time.Duration
	onEvict         func(n int)
}

// WithCleanupInterval overrides DefaultCacheCleanup
func WithCleanupInterval(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithEvictionHook is called with the number of entries removed by each
// expiry sweep or LRU pass.
func WithEvictionHook(fn func(n int)) CacheOption {
	return func(c *cacheConfig) {
		c.onEvict = fn
	}
}

// NewCache creates a cache holding at most maxEntries values.
func NewCache[V any](maxEntries int, opts ...CacheOption) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCacheEntries
	}
	cfg := cacheConfig{cleanupInterval: DefaultCacheCleanup}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache[V]{
		maxEntries: int64(maxEntries),
		onEvict:    cfg.onEvict,
		stopCh:     make(chan struct{}),
	}
	go c.cleanupLoop(cfg.cleanupInterval)
	return c
}

// Get retrieves a cached value if it exists and hasn't expired
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}
	e := v.(*entry[V])
	now := time.Now()
	if now.Before(e.expiresAt) {
		e.accessedAt.Store(now.UnixNano())
		return e.data, true
	}
	if c.entries.CompareAndDelete(key, v) {
		c.count.Add(-1)
	}
	return zero, false
}

// Set stores a value with the given TTL, replacing any previous value.
func (c *Cache[V]) Set(key string, data V, ttl time.Duration) {
	now := time.Now()
	e := &entry[V]{
		data:      data,
		expiresAt: now.Add(ttl),
	}
	e.accessedAt.Store(now.UnixNano())

	if _, existed := c.entries.Swap(key, e); existed {
		return
	}

	newCount := c.count.Add(1)
	if newCount > c.maxEntries {
		// Evict 10% extra so every insert past the limit doesn't trigger a pass
		go c.evictLRU(int(newCount - c.maxEntries + c.maxEntries/10))
	}
}

// Size returns the current number of entries in the cache
func (c *Cache[V]) Size() int64 {
	return c.count.Load()
}

// Close stops the background cleanup goroutine
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries and evicts LRU entries if over limit
func (c *Cache[V]) cleanup() {
	now := time.Now()
	expired := 0

	c.entries.Range(func(key, value any) bool {
		if now.After(value.(*entry[V]).expiresAt) {
			if c.entries.CompareAndDelete(key, value) {
				expired++
			}
		}
		return true
	})

	if expired > 0 {
		c.count.Add(-int64(expired))
		c.notifyEvict(expired)
	}

	if current := c.count.Load(); current > c.maxEntries {
		c.evictLRU(int(current - c.maxEntries + c.maxEntries/10))
	}
}

// evictLRU removes the count least recently used entries
func (c *Cache[V]) evictLRU(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type candidate struct {
		key        string
		value      any
		accessedAt int64
	}
	var candidates []candidate

	c.entries.Range(func(key, value any) bool {
		candidates = append(candidates, candidate{
			key:        key.(string),
			value:      value,
			accessedAt: value.(*entry[V]).accessedAt.Load(),
		})
		return true
	})

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].accessedAt < candidates[j].accessedAt
	})

	evicted := 0
	for _, cand := range candidates {
		if evicted >= count {
			break
		}
		if c.entries.CompareAndDelete(cand.key, cand.value) {
			evicted++
		}
	}

	if evicted > 0 {
		c.count.Add(-int64(evicted))
		c.notifyEvict(evicted)
	}
}

func (c *Cache[V]) notifyEvict(n int) {
	if c.onEvict != nil {
		c.onEvict(n)
	}
}
