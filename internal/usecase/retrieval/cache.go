package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"protocol-rag/internal/domain"
)

// Cache stores per-variant search results.
// Concurrent writers for one key always agree on the value, so last writer wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.ScoredChunk, bool)
	Set(ctx context.Context, key string, hits []domain.ScoredChunk)
}

// CacheKey identifies one variant search.
func CacheKey(text string, filters domain.SearchFilters, limit int, threshold float64) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(filters.Key()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(limit)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(threshold, 'f', -1, 64)))
	return "retrieval:" + hex.EncodeToString(h.Sum(nil))
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]domain.ScoredChunk, bool) { return nil, false }
func (noopCache) Set(context.Context, string, []domain.ScoredChunk)        {}
