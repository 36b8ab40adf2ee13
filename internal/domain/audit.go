package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is a write-once record of a guardrail decision.
// It carries no patient data.
type AuditEntry struct {
	ID                  uuid.UUID
	RequestID           string
	Query               string
	NormalizedQuery     string
	RetrievedChunkIDs   []int64
	GeneratedAnswerHash string
	Verdict             GuardrailVerdict
	Timestamp           time.Time
}

// AuditRepository is the append-only audit store.
type AuditRepository interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// AuditSink accepts entries for asynchronous persistence.
// Record must not block the response path.
type AuditSink interface {
	Record(entry AuditEntry)
}
