package compare

import (
	"fmt"
	"strings"

	"protocol-rag/internal/domain"
)

type medicationStats struct {
	protocols map[int]struct{}
	doses     []domain.ProtocolDose
	distinct  map[string]struct{}
}

// Summarize diffs the medications of the compared protocols.
// Dose strings are compared literally: "1mg" and "1 mg" count as a variation.
func Summarize(protocols []domain.ComparedProtocol) domain.ComparisonSummary {
	summary := domain.ComparisonSummary{
		CommonMedications:  []string{},
		VaryingMedications: []string{},
		DoseVariations:     []domain.DoseVariation{},
		KeyDifferences:     []string{},
	}
	if len(protocols) == 0 {
		return summary
	}

	var order []string
	stats := make(map[string]*medicationStats)
	for i, p := range protocols {
		for _, m := range p.Medications {
			s, ok := stats[m.Name]
			if !ok {
				s = &medicationStats{protocols: map[int]struct{}{}, distinct: map[string]struct{}{}}
				stats[m.Name] = s
				order = append(order, m.Name)
			}
			s.protocols[i] = struct{}{}
			if m.Dose == "" {
				continue
			}
			s.doses = append(s.doses, domain.ProtocolDose{
				ProtocolTitle: p.Chunk.ProtocolTitle,
				AgencyID:      p.Chunk.AgencyID,
				Dose:          m.Dose,
			})
			s.distinct[m.Dose] = struct{}{}
		}
	}

	for _, name := range order {
		s := stats[name]
		if len(s.protocols) == len(protocols) {
			summary.CommonMedications = append(summary.CommonMedications, name)
		} else {
			summary.VaryingMedications = append(summary.VaryingMedications, name)
			summary.KeyDifferences = append(summary.KeyDifferences, fmt.Sprintf(
				"%s is mentioned by %d of %d protocols (absent from %s)",
				name, len(s.protocols), len(protocols), strings.Join(absentTitles(protocols, s.protocols), ", ")))
		}
		if len(s.distinct) > 1 {
			summary.DoseVariations = append(summary.DoseVariations, domain.DoseVariation{Medication: name, Doses: s.doses})
			summary.KeyDifferences = append(summary.KeyDifferences, fmt.Sprintf(
				"%s dose differs: %s", name, formatDoses(s.doses)))
		}
	}

	var with, without []string
	for _, p := range protocols {
		if len(p.Contraindications) > 0 {
			with = append(with, p.Chunk.ProtocolTitle)
		} else {
			without = append(without, p.Chunk.ProtocolTitle)
		}
	}
	if len(with) > 0 && len(without) > 0 {
		summary.KeyDifferences = append(summary.KeyDifferences, fmt.Sprintf(
			"contraindications stated by %s but not by %s", strings.Join(with, ", "), strings.Join(without, ", ")))
	}

	return summary
}

func absentTitles(protocols []domain.ComparedProtocol, present map[int]struct{}) []string {
	var titles []string
	for i, p := range protocols {
		if _, ok := present[i]; !ok {
			titles = append(titles, p.Chunk.ProtocolTitle)
		}
	}
	return titles
}

func formatDoses(doses []domain.ProtocolDose) string {
	parts := make([]string, len(doses))
	for i, d := range doses {
		parts[i] = d.ProtocolTitle + ": " + d.Dose
	}
	return strings.Join(parts, "; ")
}
