package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase/retrieval"
)

var _ retrieval.Cache = (*RedisCache)(nil)

// RedisCache shares retrieval results across replicas.
// Redis errors degrade to a cache miss; retrieval never fails because of the cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "protocol-rag:", logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.ScoredChunk, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("retrieval_cache_get_failed", slog.String("error", err.Error()))
		return nil, false
	}

	var hits []domain.ScoredChunk
	if err := json.Unmarshal(data, &hits); err != nil {
		c.logger.Warn("retrieval_cache_decode_failed", slog.String("error", err.Error()))
		return nil, false
	}
	return hits, true
}

func (c *RedisCache) Set(ctx context.Context, key string, hits []domain.ScoredChunk) {
	data, err := json.Marshal(hits)
	if err != nil {
		c.logger.Warn("retrieval_cache_encode_failed", slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("retrieval_cache_set_failed", slog.String("error", err.Error()))
	}
}
