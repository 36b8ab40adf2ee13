package guardrail

import (
	"context"

	"protocol-rag/internal/domain"
)

// Input is everything a validator may look at. Validators must treat it as read-only.
type Input struct {
	RequestID       string
	Query           string
	NormalizedQuery string
	Answer          string
	Chunks          []domain.ScoredChunk
}

// PartialVerdict is one validator's finding.
type PartialVerdict struct {
	Name    string
	Passed  bool
	Score   float64
	Reasons []string
}

// Validator is one independent guardrail check.
type Validator interface {
	Name() string
	Validate(ctx context.Context, in Input) (PartialVerdict, error)
}

const (
	NameCitation      = "citation"
	NameDose          = "dose"
	NameHallucination = "hallucination"
	NameConfidence    = "confidence"
)
