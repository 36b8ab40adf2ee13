package domain

import "errors"

var (
	// ErrNormalization is never returned: normalization is total.
	// It exists so the error taxonomy is complete and callers can document the guarantee.
	ErrNormalization = errors.New("normalization failed")

	// ErrEmptyQuery is returned when a flow receives a blank query.
	ErrEmptyQuery = errors.New("query is required")

	// ErrRetrievalUnavailable means the embedding or vector-store collaborator failed.
	// It is distinct from an empty result.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrRetrievalTimeout means the deadline expired during retrieval fan-out.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrGenerationUnavailable means the LLM collaborator failed; ask fails closed.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
