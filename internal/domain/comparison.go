package domain

// ComparedProtocol is one protocol's entry in a comparison.
type ComparedProtocol struct {
	Chunk             ProtocolChunk         `json:"chunk"`
	Similarity        float64               `json:"similarity"`
	Medications       []ExtractedMedication `json:"medications"`
	Contraindications []string              `json:"contraindications"`
	KeyPoints         []string              `json:"key_points"`
}

// ProtocolDose is the dose one protocol states for a medication.
type ProtocolDose struct {
	ProtocolTitle string `json:"protocol_title"`
	AgencyID      int64  `json:"agency_id"`
	Dose          string `json:"dose"`
}

// DoseVariation flags a medication whose dose strings differ across protocols.
// The comparison is textual: "1mg" and "1 mg" are different strings.
type DoseVariation struct {
	Medication string         `json:"medication"`
	Doses      []ProtocolDose `json:"doses"`
}

// ComparisonSummary aggregates the medication diff across compared protocols.
type ComparisonSummary struct {
	CommonMedications  []string        `json:"common_medications"`
	VaryingMedications []string        `json:"varying_medications"`
	DoseVariations     []DoseVariation `json:"dose_variations"`
	KeyDifferences     []string        `json:"key_differences"`
}

// ComparisonResult is the structured cross-protocol comparison for one query.
type ComparisonResult struct {
	Query           string             `json:"query"`
	NormalizedQuery NormalizedQuery    `json:"normalized_query"`
	Protocols       []ComparedProtocol `json:"protocols"`
	Summary         ComparisonSummary  `json:"summary"`
}
