package domain

// Decision is the guardrail outcome for a generated answer.
type Decision string

const (
	DecisionRelease   Decision = "release"
	DecisionDowngrade Decision = "downgrade"
	DecisionBlock     Decision = "block"
)

// DisclaimerType selects the disclaimer attached to a response.
type DisclaimerType string

const (
	DisclaimerNone             DisclaimerType = "none"
	DisclaimerVerifyWithSource DisclaimerType = "verify_with_primary_source"
	DisclaimerLowConfidence    DisclaimerType = "low_confidence"
	DisclaimerNotFound         DisclaimerType = "protocol_not_found"
)

// Text returns the user-facing disclaimer sentence.
func (d DisclaimerType) Text() string {
	switch d {
	case DisclaimerVerifyWithSource:
		return "Some statements could not be matched to the cited protocol. Verify against the primary protocol source before acting."
	case DisclaimerLowConfidence:
		return "This answer has low confidence. Consult the primary protocol source before acting."
	case DisclaimerNotFound:
		return "Protocol not found or unable to answer safely. Consult the primary protocol source or online medical control."
	default:
		return ""
	}
}

// GuardrailVerdict is produced fresh for every generated answer.
type GuardrailVerdict struct {
	CitationsOK        bool           `json:"citations_ok"`
	DoseOK             bool           `json:"dose_ok"`
	HallucinationScore float64        `json:"hallucination_score"`
	Confidence         float64        `json:"confidence"`
	Disclaimer         DisclaimerType `json:"disclaimer"`
	Decision           Decision       `json:"decision"`
	Reasons            []string       `json:"reasons,omitempty"`
}
