package repository

import (
	"context"
	"fmt"

	"protocol-rag/internal/domain"
)

type auditLogRepository struct {
	db DB
}

// NewAuditLogRepository creates the append-only guardrail audit store.
// There is no read or update path.
func NewAuditLogRepository(db DB) domain.AuditRepository {
	return &auditLogRepository{db: db}
}

const insertAuditQuery = `
		INSERT INTO guardrail_audit_log (
			id, request_id, query, normalized_query, retrieved_chunk_ids, answer_hash,
			decision, disclaimer, citations_ok, dose_ok, hallucination_score, confidence,
			reasons, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

func (r *auditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	chunkIDs := entry.RetrievedChunkIDs
	if chunkIDs == nil {
		chunkIDs = []int64{}
	}
	reasons := entry.Verdict.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	_, err := executor(ctx, r.db).Exec(ctx, insertAuditQuery,
		entry.ID,
		entry.RequestID,
		entry.Query,
		entry.NormalizedQuery,
		chunkIDs,
		entry.GeneratedAnswerHash,
		string(entry.Verdict.Decision),
		string(entry.Verdict.Disclaimer),
		entry.Verdict.CitationsOK,
		entry.Verdict.DoseOK,
		entry.Verdict.HallucinationScore,
		entry.Verdict.Confidence,
		reasons,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
