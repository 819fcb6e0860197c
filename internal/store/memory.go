// Package store provides the article cache backends: an in-process LRU,
// Redis and MongoDB. All of them satisfy encyclopedia.Cache and treat
// backend failures as misses.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/internal/infra"
	"github.com/olgasafonova/wikiclone-server/metrics"
)

// Backend names accepted by config and used as metric labels.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// MemoryCache keeps articles in process memory.
type MemoryCache struct {
	cache *infra.Cache[*encyclopedia.Article]
}

// NewMemoryCache creates a memory cache holding at most maxEntries articles.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		cache: infra.NewCache[*encyclopedia.Article](maxEntries,
			infra.WithEvictionHook(metrics.RecordEvictions)),
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*encyclopedia.Article, bool) {
	return m.cache.Get(key)
}

func (m *MemoryCache) Set(_ context.Context, key string, article *encyclopedia.Article, ttl time.Duration) {
	m.cache.Set(key, article, ttl)
	metrics.SetCacheSize(m.cache.Size())
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *MemoryCache) Len() int64 {
	return m.cache.Size()
}

// Close stops the background sweeper.
func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}

// Cache is an encyclopedia.Cache that holds resources.
type Cache interface {
	encyclopedia.Cache
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend         string
	MaxEntries      int
	RedisAddr       string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	Logger          *slog.Logger
}

// Open builds the configured backend. An empty backend means memory.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryCache(opts.MaxEntries), nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, opts.RedisAddr, opts.Logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendMongo:
		c, err := NewMongoCache(ctx, opts.MongoURI, opts.MongoDatabase, opts.MongoCollection, opts.Logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
