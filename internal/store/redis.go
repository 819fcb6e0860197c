package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/metrics"
	"github.com/redis/go-redis/v9"
)

// redisCmdable is the subset of *redis.Client the cache needs.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores JSON-encoded articles in Redis with a native TTL.
type RedisCache struct {
	client redisCmdable
	closer func() error
	logger *slog.Logger
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache(ctx context.Context, addr string, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	c := newRedisCache(client, logger)
	c.closer = client.Close
	return c, nil
}

func newRedisCache(client redisCmdable, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*encyclopedia.Article, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		metrics.RecordCacheError(BackendRedis, "get")
		r.logger.Warn("Cache read failed", "backend", BackendRedis, "key", key, "error", err)
		return nil, false
	}

	var article encyclopedia.Article
	if err := json.Unmarshal(raw, &article); err != nil {
		metrics.RecordCacheError(BackendRedis, "decode")
		r.logger.Warn("Discarding undecodable cache entry", "backend", BackendRedis, "key", key, "error", err)
		return nil, false
	}
	return &article, true
}

func (r *RedisCache) Set(ctx context.Context, key string, article *encyclopedia.Article, ttl time.Duration) {
	raw, err := json.Marshal(article)
	if err != nil {
		metrics.RecordCacheError(BackendRedis, "encode")
		r.logger.Warn("Failed to encode article for cache", "backend", BackendRedis, "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		metrics.RecordCacheError(BackendRedis, "set")
		r.logger.Warn("Cache write failed", "backend", BackendRedis, "key", key, "error", err)
	}
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
