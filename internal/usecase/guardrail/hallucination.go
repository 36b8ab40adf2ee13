package guardrail

import (
	"context"
	"fmt"

	"protocol-rag/internal/usecase/extract"
)

const (
	weightCitationFailure = 0.5
	weightUnknownMeds     = 0.3
	weightLength          = 0.2

	// Answers up to this multiple of the cited text length carry no length penalty.
	lengthRatioFloor = 0.75
	// Answers at or above this multiple carry the full length penalty.
	lengthRatioCeil = 2.0
)

// HallucinationValidator scores how much of the answer is not grounded in the cited chunks.
type HallucinationValidator struct {
	extractor  *extract.Extractor
	minOverlap float64
	maxScore   float64
}

func NewHallucinationValidator(ex *extract.Extractor, cfg Config) *HallucinationValidator {
	return &HallucinationValidator{extractor: ex, minOverlap: cfg.ClaimOverlap, maxScore: cfg.MaxHallucination}
}

func (v *HallucinationValidator) Name() string { return NameHallucination }

func (v *HallucinationValidator) Validate(_ context.Context, in Input) (PartialVerdict, error) {
	score, reasons := hallucinationScore(v.extractor, in, v.minOverlap)
	return PartialVerdict{
		Name:    NameHallucination,
		Passed:  score <= v.maxScore,
		Score:   score,
		Reasons: reasons,
	}, nil
}

// hallucinationScore combines the citation failure rate, the share of answer
// medications absent from every cited chunk and a length penalty into [0,1].
func hallucinationScore(ex *extract.Extractor, in Input, minOverlap float64) (float64, []string) {
	a := analyze(ex, in.Answer, in.Chunks, minOverlap)
	var reasons []string

	failure := a.failureRate()
	if len(in.Chunks) == 0 {
		failure = 1
	}

	unknown := 0.0
	answerMeds := ex.Names(in.Answer)
	if len(answerMeds) > 0 {
		cited := make(map[string]struct{})
		for _, name := range ex.Names(a.chunkText) {
			cited[name] = struct{}{}
		}
		missing := 0
		for _, name := range answerMeds {
			if _, ok := cited[name]; !ok {
				missing++
				reasons = append(reasons, fmt.Sprintf("medication not in cited chunks: %s", name))
			}
		}
		unknown = float64(missing) / float64(len(answerMeds))
	}

	penalty := 1.0
	if n := len(a.chunkText); n > 0 {
		ratio := float64(len(in.Answer)) / float64(n)
		penalty = clamp01((ratio - lengthRatioFloor) / (lengthRatioCeil - lengthRatioFloor))
	}
	if penalty >= 1 {
		reasons = append(reasons, "answer is disproportionately long for its sources")
	}

	return clamp01(weightCitationFailure*failure + weightUnknownMeds*unknown + weightLength*penalty), reasons
}
