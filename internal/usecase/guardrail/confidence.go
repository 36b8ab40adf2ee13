package guardrail

import (
	"context"

	"protocol-rag/internal/usecase/extract"
)

const (
	weightSimilarity   = 0.4
	weightCitationPass = 0.35
	weightGroundedness = 0.25
)

// ConfidenceValidator combines retrieval similarity, citation pass rate and the
// inverted hallucination score.
type ConfidenceValidator struct {
	extractor  *extract.Extractor
	minOverlap float64
	threshold  float64
}

func NewConfidenceValidator(ex *extract.Extractor, cfg Config) *ConfidenceValidator {
	return &ConfidenceValidator{extractor: ex, minOverlap: cfg.ClaimOverlap, threshold: cfg.DowngradeThreshold}
}

func (v *ConfidenceValidator) Name() string { return NameConfidence }

func (v *ConfidenceValidator) Validate(_ context.Context, in Input) (PartialVerdict, error) {
	a := analyze(v.extractor, in.Answer, in.Chunks, v.minOverlap)
	hallucination, _ := hallucinationScore(v.extractor, in, v.minOverlap)

	confidence := clamp01(
		weightSimilarity*topSimilarity(in.Chunks) +
			weightCitationPass*a.passRate() +
			weightGroundedness*(1-hallucination))

	return PartialVerdict{
		Name:   NameConfidence,
		Passed: confidence >= v.threshold,
		Score:  confidence,
	}, nil
}
