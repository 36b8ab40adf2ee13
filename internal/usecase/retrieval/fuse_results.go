package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/infra/metrics"
)

type variantResult struct {
	index int
	hits  []domain.ScoredChunk
	err   error
}

// searchVariants runs one search per variant in parallel and waits for all of them.
// Each variant's error is reported in its own slot; the caller decides whether the fusion failed.
func (e *Engine) searchVariants(
	ctx context.Context,
	requestID string,
	variants []domain.NormalizedQuery,
	filters domain.SearchFilters,
	limit int,
	threshold float64,
) ([][]domain.ScoredChunk, []error) {
	searchStart := time.Now()
	resultsChan := make(chan variantResult, len(variants))
	var wg sync.WaitGroup

	for i, v := range variants {
		wg.Add(1)
		go func(idx int, q domain.NormalizedQuery) {
			defer wg.Done()
			hits, err := e.searchVariant(ctx, q.Text, filters, limit, threshold)
			resultsChan <- variantResult{index: idx, hits: hits, err: err}
		}(i, v)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	allResults := make([][]domain.ScoredChunk, len(variants))
	errs := make([]error, len(variants))
	for vr := range resultsChan {
		allResults[vr.index] = vr.hits
		errs[vr.index] = vr.err
		if vr.err != nil {
			metrics.RecordVariantFailure(stageOf(vr.err))
			e.logger.Warn("retrieval_variant_failed",
				slog.String("request_id", requestID),
				slog.String("variant", variants[vr.index].Text),
				slog.String("error", vr.err.Error()))
		}
	}

	e.logger.Info("parallel_vector_search_completed",
		slog.String("request_id", requestID),
		slog.Int("variant_count", len(variants)),
		slog.Int64("duration_ms", time.Since(searchStart).Milliseconds()))

	return allResults, errs
}

// fuseByMax merges result sets by chunk id. A chunk found by several variants
// keeps the highest similarity any of them observed.
func fuseByMax(sets [][]domain.ScoredChunk) []domain.ScoredChunk {
	best := make(map[int64]domain.ScoredChunk)
	for _, hits := range sets {
		for _, h := range hits {
			if cur, ok := best[h.Chunk.ID]; !ok || h.Similarity > cur.Similarity {
				best[h.Chunk.ID] = h
			}
		}
	}

	fused := make([]domain.ScoredChunk, 0, len(best))
	for _, h := range best {
		fused = append(fused, h)
	}
	sortHits(fused)
	return fused
}

// filterHits drops hits below threshold, deduplicates by id and sorts.
// Store ordering is not trusted.
func filterHits(hits []domain.ScoredChunk, threshold float64) []domain.ScoredChunk {
	kept := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		h.Similarity = clamp01(h.Similarity)
		if h.Similarity < threshold {
			continue
		}
		kept = append(kept, h)
	}
	return fuseByMax([][]domain.ScoredChunk{kept})
}

// sortHits orders by descending similarity, then ascending chunk id so equal scores are stable.
func sortHits(hits []domain.ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
