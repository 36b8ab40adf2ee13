package retrieval_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase/retrieval"
)

type MockVectorEncoder struct {
	mock.Mock
}

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockVectorEncoder) Version() string { return "test-embedder" }

type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) Search(ctx context.Context, vector []float32, filters domain.SearchFilters, topK int) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, vector, filters, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

type MockReranker struct {
	mock.Mock
}

func (m *MockReranker) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankResult, error) {
	args := m.Called(ctx, query, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RerankResult), args.Error(1)
}

func (m *MockReranker) ModelName() string { return "test-reranker" }

type mapCache struct {
	mu    sync.Mutex
	items map[string][]domain.ScoredChunk
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string][]domain.ScoredChunk)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]domain.ScoredChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hits, ok := c.items[key]
	return hits, ok
}

func (c *mapCache) Set(_ context.Context, key string, hits []domain.ScoredChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = hits
}

func testConfig() retrieval.Config {
	cfg := retrieval.DefaultConfig()
	cfg.Threshold = 0.5
	cfg.SearchLimit = 10
	cfg.FanOutTimeout = time.Second
	cfg.EmbedInitialBackoff = time.Millisecond
	cfg.EmbedMaxBackoff = 2 * time.Millisecond
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func hit(id int64, sim float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk:      domain.ProtocolChunk{ID: id, ProtocolTitle: "Protocol", Content: "content"},
		Similarity: sim,
	}
}

func nq(text string) domain.NormalizedQuery {
	return domain.NormalizedQuery{Original: text, Text: text, Conditions: []string{}}
}

func assertSortedUnique(t *testing.T, hits []domain.ScoredChunk) {
	t.Helper()
	seen := make(map[int64]bool)
	for i, h := range hits {
		assert.False(t, seen[h.Chunk.ID], "duplicate chunk id %d", h.Chunk.ID)
		seen[h.Chunk.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, hits[i-1].Similarity, h.Similarity)
		}
	}
}

func TestRetrieve_FiltersSortsAndDeduplicates(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)
	filters := domain.SearchFilters{StateCode: "CA"}

	encoder.On("Encode", mock.Anything, []string{"seizure"}).Return([][]float32{{0.1, 0.2}}, nil)
	store.On("Search", mock.Anything, []float32{0.1, 0.2}, filters, 10).Return([]domain.ScoredChunk{
		hit(3, 0.55),
		hit(1, 0.91),
		hit(2, 0.40),
		hit(3, 0.70),
		hit(4, 0.80),
	}, nil)

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.Retrieve(context.Background(), nq("seizure"), filters, 2)
	require.NoError(t, err)

	require.Len(t, result.Hits, 2)
	assert.Equal(t, int64(1), result.Hits[0].Chunk.ID)
	assert.Equal(t, int64(4), result.Hits[1].Chunk.ID)
	assertSortedUnique(t, result.Hits)
	store.AssertExpectations(t)
}

func TestRetrieve_OverFetchUsesCallerLimitWhenLarger(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, domain.SearchFilters{}, 25).Return([]domain.ScoredChunk{}, nil)

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.Retrieve(context.Background(), nq("stroke"), domain.SearchFilters{}, 25)
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
	store.AssertExpectations(t)
}

func TestRetrieveMulti_FusionKeepsMaximum(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, []string{"pediatric seizure"}).Return([][]float32{{1, 0}}, nil)
	encoder.On("Encode", mock.Anything, []string{"seizure"}).Return([][]float32{{0, 1}}, nil)
	store.On("Search", mock.Anything, []float32{1, 0}, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.6), hit(2, 0.75)}, nil)
	store.On("Search", mock.Anything, []float32{0, 1}, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.9), hit(3, 0.65)}, nil)

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.RetrieveMulti(context.Background(),
		[]domain.NormalizedQuery{nq("pediatric seizure"), nq("seizure")}, domain.SearchFilters{}, 10)
	require.NoError(t, err)

	require.Len(t, result.Hits, 3)
	assert.Equal(t, int64(1), result.Hits[0].Chunk.ID)
	assert.InDelta(t, 0.9, result.Hits[0].Similarity, 1e-9)
	assert.Equal(t, []int64{1, 2, 3}, result.ChunkIDs())
	assertSortedUnique(t, result.Hits)
}

func TestRetrieve_CacheHitSkipsEncoderAndStore(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, []string{"anaphylaxis"}).Return([][]float32{{0.3}}, nil).Once()
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(7, 0.88)}, nil).Once()

	engine := retrieval.NewEngine(encoder, store, newMapCache(), nil, testConfig(), testLogger())

	first, err := engine.Retrieve(context.Background(), nq("anaphylaxis"), domain.SearchFilters{}, 5)
	require.NoError(t, err)
	second, err := engine.Retrieve(context.Background(), nq("anaphylaxis"), domain.SearchFilters{}, 5)
	require.NoError(t, err)

	assert.Equal(t, first.Hits, second.Hits)
	encoder.AssertNumberOfCalls(t, "Encode", 1)
	store.AssertNumberOfCalls(t, "Search", 1)
}

func TestRetrieve_CacheKeyIncludesFilters(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.3}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(7, 0.88)}, nil)

	engine := retrieval.NewEngine(encoder, store, newMapCache(), nil, testConfig(), testLogger())

	_, err := engine.Retrieve(context.Background(), nq("anaphylaxis"), domain.SearchFilters{StateCode: "CA"}, 5)
	require.NoError(t, err)
	_, err = engine.Retrieve(context.Background(), nq("anaphylaxis"), domain.SearchFilters{StateCode: "NV"}, 5)
	require.NoError(t, err)

	store.AssertNumberOfCalls(t, "Search", 2)
}

func TestRetrieveMulti_PartialFailureDropsVariant(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, []string{"chest pain"}).Return([][]float32{{1}}, nil)
	encoder.On("Encode", mock.Anything, []string{"acute coronary syndrome"}).Return([][]float32{{2}}, nil)
	store.On("Search", mock.Anything, []float32{1}, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(11, 0.7)}, nil)
	store.On("Search", mock.Anything, []float32{2}, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.RetrieveMulti(context.Background(),
		[]domain.NormalizedQuery{nq("chest pain"), nq("acute coronary syndrome")}, domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, result.ChunkIDs())
}

func TestRetrieveMulti_AllVariantsFail(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("pgvector down"))

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.RetrieveMulti(context.Background(),
		[]domain.NormalizedQuery{nq("stroke"), nq("cva")}, domain.SearchFilters{}, 5)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
	assert.NotErrorIs(t, err, domain.ErrRetrievalTimeout)
}

func TestRetrieve_EncoderFailureIsUnavailableNotEmpty(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).Return(nil, errors.New("embedder 502"))

	cfg := testConfig()
	engine := retrieval.NewEngine(encoder, store, nil, nil, cfg, testLogger())

	_, err := engine.Retrieve(context.Background(), nq("sepsis"), domain.SearchFilters{}, 5)
	require.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
	encoder.AssertNumberOfCalls(t, "Encode", int(cfg.EmbedMaxAttempts))
	store.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetrieve_EncoderRetriedThenSucceeds(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).Return(nil, errors.New("temporary")).Twice()
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil).Once()
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.8)}, nil)

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.Retrieve(context.Background(), nq("sepsis"), domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.ChunkIDs())
	encoder.AssertNumberOfCalls(t, "Encode", 3)
}

func TestRetrieve_DeadlineIsTimeout(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	cfg := testConfig()
	cfg.FanOutTimeout = 20 * time.Millisecond
	engine := retrieval.NewEngine(encoder, store, nil, nil, cfg, testLogger())

	_, err := engine.Retrieve(context.Background(), nq("hypoglycemia"), domain.SearchFilters{}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetrievalTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetrieve_RerankReordersHits(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)
	reranker := new(MockReranker)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.9), hit(2, 0.8)}, nil)
	reranker.On("Rerank", mock.Anything, "overdose", mock.Anything).
		Return([]domain.RerankResult{{ID: 1, Score: 0.2}, {ID: 2, Score: 0.95}}, nil)

	cfg := testConfig()
	cfg.Rerank.Enabled = true
	engine := retrieval.NewEngine(encoder, store, nil, reranker, cfg, testLogger())

	result, err := engine.Retrieve(context.Background(), nq("overdose"), domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, result.ChunkIDs())
	assert.InDelta(t, 0.95, result.TopSimilarity(), 1e-9)
}

func TestRetrieve_RerankDropsHeadHitsBelowFloor(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)
	reranker := new(MockReranker)

	section := hit(2, 0.8)
	section.Chunk.ProtocolTitle = "Seizure - Pediatric"
	section.Chunk.Section = "Treatment"

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.9), section, hit(3, 0.7)}, nil)
	reranker.On("Rerank", mock.Anything, "seizure", mock.MatchedBy(func(c []domain.RerankCandidate) bool {
		return len(c) == 2 && c[0].Title == "Protocol" && c[1].Title == "Seizure - Pediatric / Treatment"
	})).Return([]domain.RerankResult{{ID: 2, Score: 0.9}}, nil)

	cfg := testConfig()
	cfg.Rerank.Enabled = true
	cfg.Rerank.TopK = 2
	engine := retrieval.NewEngine(encoder, store, nil, reranker, cfg, testLogger())

	result, err := engine.Retrieve(context.Background(), nq("seizure"), domain.SearchFilters{}, 5)
	require.NoError(t, err)
	// Chunk 1 was in the reranked head but not kept; chunk 3 was never offered.
	assert.Equal(t, []int64{2, 3}, result.ChunkIDs())
	assertSortedUnique(t, result.Hits)
	reranker.AssertExpectations(t)
}

func TestRetrieve_RerankFailureKeepsVectorOrder(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)
	reranker := new(MockReranker)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.9), hit(2, 0.8)}, nil)
	reranker.On("Rerank", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("reranker down"))

	cfg := testConfig()
	cfg.Rerank.Enabled = true
	engine := retrieval.NewEngine(encoder, store, nil, reranker, cfg, testLogger())

	result, err := engine.Retrieve(context.Background(), nq("overdose"), domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, result.ChunkIDs())
}

func TestRetrieveMulti_WithThresholdOverride(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockChunkRepository)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{hit(1, 0.9), hit(2, 0.3)}, nil)

	engine := retrieval.NewEngine(encoder, store, nil, nil, testConfig(), testLogger())

	result, err := engine.Retrieve(context.Background(), nq("shock"), domain.SearchFilters{}, 5, retrieval.WithThreshold(0.2))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, result.ChunkIDs())
}

func TestRetrieve_ZeroLimit(t *testing.T) {
	engine := retrieval.NewEngine(new(MockVectorEncoder), new(MockChunkRepository), nil, nil, testConfig(), testLogger())

	result, err := engine.Retrieve(context.Background(), nq("shock"), domain.SearchFilters{}, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
}

func TestCacheKey(t *testing.T) {
	base := retrieval.CacheKey("seizure", domain.SearchFilters{}, 5, 0.5)

	assert.Equal(t, base, retrieval.CacheKey("seizure", domain.SearchFilters{}, 5, 0.5))
	assert.NotEqual(t, base, retrieval.CacheKey("seizure", domain.SearchFilters{StateCode: "CA"}, 5, 0.5))
	assert.NotEqual(t, base, retrieval.CacheKey("seizure", domain.SearchFilters{}, 6, 0.5))
	assert.NotEqual(t, base, retrieval.CacheKey("seizure", domain.SearchFilters{}, 5, 0.3))
	assert.NotEqual(t, base, retrieval.CacheKey("stroke", domain.SearchFilters{}, 5, 0.5))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, retrieval.DefaultConfig().Validate())

	cfg := retrieval.DefaultConfig()
	cfg.Threshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = retrieval.DefaultConfig()
	cfg.EmbedMaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = retrieval.DefaultConfig()
	cfg.Rerank.Enabled = true
	cfg.Rerank.TopK = 0
	assert.Error(t, cfg.Validate())
}
