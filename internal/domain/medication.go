package domain

import "encoding/json"

// ExtractedMedication is a medication mention mined from free text.
// An empty Dose or Route means the text did not state one.
type ExtractedMedication struct {
	Name  string
	Dose  string
	Route string
}

// Key is the deduplication key of an extraction.
func (m ExtractedMedication) Key() string {
	return m.Name + "|" + m.Dose + "|" + m.Route
}

type extractedMedicationJSON struct {
	Name  string  `json:"name"`
	Dose  *string `json:"dose"`
	Route *string `json:"route"`
}

// MarshalJSON encodes absent dose and route as null.
func (m ExtractedMedication) MarshalJSON() ([]byte, error) {
	out := extractedMedicationJSON{Name: m.Name}
	if m.Dose != "" {
		out.Dose = &m.Dose
	}
	if m.Route != "" {
		out.Route = &m.Route
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null dose and route.
func (m *ExtractedMedication) UnmarshalJSON(data []byte) error {
	var in extractedMedicationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.Name = in.Name
	m.Dose, m.Route = "", ""
	if in.Dose != nil {
		m.Dose = *in.Dose
	}
	if in.Route != nil {
		m.Route = *in.Route
	}
	return nil
}
