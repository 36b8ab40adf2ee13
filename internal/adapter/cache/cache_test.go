package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protocol-rag/internal/domain"
)

func sampleHits() []domain.ScoredChunk {
	return []domain.ScoredChunk{
		{
			Chunk: domain.ProtocolChunk{
				ID:             42,
				AgencyID:       7,
				ProtocolNumber: "1231",
				ProtocolTitle:  "Seizure - Pediatric",
				Content:        "Midazolam 0.2 mg/kg IN, max 10 mg.",
				StateCode:      "CA",
				ProtocolYear:   2025,
			},
			Similarity: 0.87,
		},
	}
}

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache(16, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", sampleHits())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sampleHits(), got)
}

func TestLRUCache_ReturnsCopies(t *testing.T) {
	c := NewLRUCache(16, time.Minute)
	ctx := context.Background()
	c.Set(ctx, "k", sampleHits())

	got, _ := c.Get(ctx, "k")
	got[0].Similarity = 0

	again, _ := c.Get(ctx, "k")
	assert.InDelta(t, 0.87, again[0].Similarity, 1e-9)
}

func TestLRUCache_Expires(t *testing.T) {
	c := NewLRUCache(16, 20*time.Millisecond)
	ctx := context.Background()
	c.Set(ctx, "k", sampleHits())

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	ctx := context.Background()
	c.Set(ctx, "a", sampleHits())
	c.Set(ctx, "b", sampleHits())
	c.Set(ctx, "c", sampleHits())

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, ttl, slog.New(slog.NewJSONHandler(io.Discard, nil))), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", sampleHits())
	assert.True(t, mr.Exists("protocol-rag:k"))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sampleHits(), got)
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	ctx := context.Background()
	c.Set(ctx, "k", sampleHits())

	assert.Equal(t, time.Minute, mr.TTL("protocol-rag:k"))

	mr.FastForward(2 * time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_UnavailableIsMiss(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	ctx := context.Background()
	mr.Close()

	c.Set(ctx, "k", sampleHits())
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_CorruptValueIsMiss(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	require.NoError(t, mr.Set("protocol-rag:k", "not json"))

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
