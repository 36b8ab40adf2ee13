package domain

import (
	"context"
	"strconv"

	"github.com/pgvector/pgvector-go"
)

// ProtocolChunk is an immutable retrievable unit of protocol text.
// ProtocolNumber is unique only within an agency.
type ProtocolChunk struct {
	ID             int64           `json:"id"`
	AgencyID       int64           `json:"agency_id"`
	AgencyName     string          `json:"agency_name,omitempty"`
	ProtocolNumber string          `json:"protocol_number"`
	ProtocolTitle  string          `json:"protocol_title"`
	Section        string          `json:"section,omitempty"`
	Content        string          `json:"content"`
	StateCode      string          `json:"state_code"`
	ProtocolYear   int             `json:"protocol_year"`
	Embedding      pgvector.Vector `json:"-"`
}

// SearchFilters restricts a vector search. Zero values mean "no filter".
type SearchFilters struct {
	StateCode string `json:"state,omitempty"`
	AgencyID  int64  `json:"agency_id,omitempty"`
}

// Key renders the filters as a stable cache-key fragment.
func (f SearchFilters) Key() string {
	return "state=" + f.StateCode + ";agency=" + strconv.FormatInt(f.AgencyID, 10)
}

// ScoredChunk pairs a chunk with its similarity to a query, in [0,1].
type ScoredChunk struct {
	Chunk      ProtocolChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}

// RetrievalResult is a ranked, deduplicated, truncated list of chunks.
// Hits are sorted by descending similarity.
type RetrievalResult struct {
	Hits []ScoredChunk `json:"hits"`
}

// TopSimilarity returns the highest similarity, or 0 when there are no hits.
func (r *RetrievalResult) TopSimilarity() float64 {
	if r == nil || len(r.Hits) == 0 {
		return 0
	}
	return r.Hits[0].Similarity
}

// ChunkIDs returns the chunk ids in rank order.
func (r *RetrievalResult) ChunkIDs() []int64 {
	if r == nil {
		return nil
	}
	ids := make([]int64, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

// ProtocolChunkRepository is the vector store collaborator.
type ProtocolChunkRepository interface {
	// Search returns up to topK chunks nearest to vector that satisfy filters.
	// Callers must not rely on ordering beyond "roughly descending similarity".
	Search(ctx context.Context, vector []float32, filters SearchFilters, topK int) ([]ScoredChunk, error)
}
