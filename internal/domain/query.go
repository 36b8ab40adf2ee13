package domain

// NormalizedQuery is the deterministic normalization of a raw user query.
type NormalizedQuery struct {
	Original   string   `json:"original"`
	Text       string   `json:"text"`
	Conditions []string `json:"conditions"`
}
