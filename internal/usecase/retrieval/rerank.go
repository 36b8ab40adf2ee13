package retrieval

import (
	"context"
	"log/slog"
	"time"

	"protocol-rag/internal/domain"
)

// rerank re-scores the fused head with the cross-encoder. Reranked hits take
// the clamped cross-encoder score as their similarity; head hits the reranker
// did not keep are dropped, and hits past the head keep their vector
// similarity. On failure the vector similarity is kept for every hit.
func (e *Engine) rerank(ctx context.Context, requestID, query string, hits []domain.ScoredChunk) []domain.ScoredChunk {
	rerankStart := time.Now()

	head := hits
	if len(head) > e.cfg.Rerank.TopK {
		head = head[:e.cfg.Rerank.TopK]
	}
	candidates := make([]domain.RerankCandidate, 0, len(head))
	for _, h := range head {
		candidates = append(candidates, domain.RerankCandidate{
			ID:      h.Chunk.ID,
			Title:   candidateTitle(h.Chunk),
			Content: h.Chunk.Content,
			Score:   h.Similarity,
		})
	}

	rerankCtx, cancel := context.WithTimeout(ctx, e.cfg.Rerank.Timeout)
	reranked, err := e.reranker.Rerank(rerankCtx, query, candidates)
	cancel()

	rerankDuration := time.Since(rerankStart)

	if err != nil {
		e.logger.Warn("reranking_failed_using_vector_similarity",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", rerankDuration.Milliseconds()))
		return hits
	}

	e.logger.Info("reranking_completed",
		slog.String("request_id", requestID),
		slog.Int("candidate_count", len(candidates)),
		slog.Int("reranked_count", len(reranked)),
		slog.String("model", e.reranker.ModelName()),
		slog.Int64("duration_ms", rerankDuration.Milliseconds()))

	scores := make(map[int64]float64, len(reranked))
	for _, r := range reranked {
		scores[r.ID] = clamp01(r.Score)
	}

	out := make([]domain.ScoredChunk, 0, len(hits))
	for i, h := range hits {
		score, ok := scores[h.Chunk.ID]
		switch {
		case ok:
			h.Similarity = score
		case i < len(head):
			continue
		}
		out = append(out, h)
	}
	sortHits(out)
	return out
}

func candidateTitle(c domain.ProtocolChunk) string {
	if c.Section == "" {
		return c.ProtocolTitle
	}
	return c.ProtocolTitle + " / " + c.Section
}
