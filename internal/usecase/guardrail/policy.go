package guardrail

import "protocol-rag/internal/domain"

// Decide combines validator findings into a verdict.
//
//	dose failed                       -> block
//	citations failed or low confidence -> downgrade
//	otherwise                         -> release
//
// A missing finding is treated as a failure of that check.
func Decide(findings map[string]PartialVerdict, downgradeThreshold float64) domain.GuardrailVerdict {
	citation, okCitation := findings[NameCitation]
	dose, okDose := findings[NameDose]
	hallucination, okHallucination := findings[NameHallucination]
	confidence, okConfidence := findings[NameConfidence]

	v := domain.GuardrailVerdict{
		CitationsOK:        okCitation && citation.Passed,
		DoseOK:             okDose && dose.Passed,
		HallucinationScore: 1,
		Confidence:         0,
	}
	if okHallucination {
		v.HallucinationScore = hallucination.Score
	}
	if okConfidence {
		v.Confidence = confidence.Score
	}
	for _, name := range []string{NameDose, NameCitation, NameHallucination, NameConfidence} {
		v.Reasons = append(v.Reasons, findings[name].Reasons...)
	}

	switch {
	case !v.DoseOK:
		v.Decision = domain.DecisionBlock
		v.Disclaimer = domain.DisclaimerNotFound
	case !v.CitationsOK:
		v.Decision = domain.DecisionDowngrade
		v.Disclaimer = domain.DisclaimerVerifyWithSource
	case v.Confidence < downgradeThreshold:
		v.Decision = domain.DecisionDowngrade
		v.Disclaimer = domain.DisclaimerLowConfidence
	default:
		v.Decision = domain.DecisionRelease
		v.Disclaimer = domain.DisclaimerNone
	}
	return v
}

// blocked is the verdict used when the gate itself cannot reach a decision.
func blocked(disclaimer domain.DisclaimerType, reasons ...string) domain.GuardrailVerdict {
	return domain.GuardrailVerdict{
		CitationsOK:        false,
		DoseOK:             false,
		HallucinationScore: 1,
		Confidence:         0,
		Disclaimer:         disclaimer,
		Decision:           domain.DecisionBlock,
		Reasons:            reasons,
	}
}
