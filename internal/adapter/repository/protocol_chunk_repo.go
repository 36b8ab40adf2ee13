package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"protocol-rag/internal/domain"
)

type protocolChunkRepository struct {
	db DB
}

// NewProtocolChunkRepository creates the pgvector-backed chunk store.
func NewProtocolChunkRepository(db DB) domain.ProtocolChunkRepository {
	return &protocolChunkRepository{db: db}
}

const searchChunksQuery = `
		SELECT id, agency_id, COALESCE(agency_name, ''), protocol_number, protocol_title,
			COALESCE(section, ''), content, state_code, protocol_year,
			1 - (embedding <=> $1::vector) AS similarity
		FROM protocol_chunks
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT $%d`

// Search returns the topK chunks nearest to vector by cosine distance.
// Similarity is 1 - distance, clamped to [0,1].
func (r *protocolChunkRepository) Search(ctx context.Context, vector []float32, filters domain.SearchFilters, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 || len(vector) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	args := []any{pgvector.NewVector(vector)}
	var conds []string
	if filters.StateCode != "" {
		args = append(args, strings.ToUpper(filters.StateCode))
		conds = append(conds, fmt.Sprintf("state_code = $%d", len(args)))
	}
	if filters.AgencyID != 0 {
		args = append(args, filters.AgencyID)
		conds = append(conds, fmt.Sprintf("agency_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, topK)
	query := fmt.Sprintf(searchChunksQuery, where, len(args))

	rows, err := executor(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search protocol chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.ScoredChunk, 0, topK)
	for rows.Next() {
		var h domain.ScoredChunk
		c := &h.Chunk
		if err := rows.Scan(
			&c.ID,
			&c.AgencyID,
			&c.AgencyName,
			&c.ProtocolNumber,
			&c.ProtocolTitle,
			&c.Section,
			&c.Content,
			&c.StateCode,
			&c.ProtocolYear,
			&h.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan protocol chunk: %w", err)
		}
		h.Similarity = max(0, min(1, h.Similarity))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hits, nil
}
