package guardrail

import (
	"context"

	"protocol-rag/internal/usecase/extract"
)

// CitationValidator requires every clinical claim to be traceable to a cited chunk.
type CitationValidator struct {
	extractor  *extract.Extractor
	minOverlap float64
}

func NewCitationValidator(ex *extract.Extractor, cfg Config) *CitationValidator {
	return &CitationValidator{extractor: ex, minOverlap: cfg.ClaimOverlap}
}

func (v *CitationValidator) Name() string { return NameCitation }

// Validate fails when no chunk was cited or any claim is unsupported.
func (v *CitationValidator) Validate(_ context.Context, in Input) (PartialVerdict, error) {
	a := analyze(v.extractor, in.Answer, in.Chunks, v.minOverlap)
	pv := PartialVerdict{Name: NameCitation, Score: a.passRate()}

	if len(in.Chunks) == 0 {
		pv.Reasons = []string{"answer cites no protocol chunks"}
		return pv, nil
	}
	pv.Reasons = unsupportedReasons(a)
	pv.Passed = len(a.unsupported) == 0
	return pv, nil
}
