// Package cache provides retrieval cache backends.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase/retrieval"
)

var _ retrieval.Cache = (*LRUCache)(nil)

// LRUCache is an in-process cache with a fixed TTL.
type LRUCache struct {
	lru *expirable.LRU[string, []domain.ScoredChunk]
}

// NewLRUCache creates a cache holding at most size entries for ttl each.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[string, []domain.ScoredChunk](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]domain.ScoredChunk, bool) {
	hits, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return clone(hits), true
}

func (c *LRUCache) Set(_ context.Context, key string, hits []domain.ScoredChunk) {
	c.lru.Add(key, clone(hits))
}

// Len reports the number of live entries.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

func clone(hits []domain.ScoredChunk) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(hits))
	copy(out, hits)
	return out
}
