package domain

import "context"

// RerankCandidate is a chunk offered to the cross-encoder.
type RerankCandidate struct {
	ID int64
	// Title labels the passage, e.g. "Seizure - Pediatric / Treatment".
	Title   string
	Content string
	Score   float64
}

// RerankResult is the cross-encoder relevance for one candidate, typically in [0,1].
type RerankResult struct {
	ID    int64
	Score float64
}

// Reranker re-scores fused candidates against the query.
// On error callers keep the vector similarity.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)
	ModelName() string
}
