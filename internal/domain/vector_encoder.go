package domain

import (
	"context"
)

// VectorEncoder is the embedding collaborator.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
