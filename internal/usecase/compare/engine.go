// Package compare builds structured cross-protocol comparisons.
// It never calls the generation provider.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase/extract"
	"protocol-rag/internal/usecase/normalize"
	"protocol-rag/internal/usecase/retrieval"
)

var (
	tracer            = otel.Tracer("protocol-rag/usecase/compare")
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Retriever is the fusion retrieval the comparison runs on.
type Retriever interface {
	RetrieveMulti(ctx context.Context, queries []domain.NormalizedQuery, filters domain.SearchFilters, limit int, opts ...retrieval.Option) (*domain.RetrievalResult, error)
}

// Engine compares protocols that answer the same question across agencies.
type Engine struct {
	normalizer *normalize.Normalizer
	retriever  Retriever
	extractor  *extract.Extractor
	cfg        Config
	logger     *slog.Logger
}

// NewEngine creates a comparison engine.
func NewEngine(normalizer *normalize.Normalizer, retriever Retriever, extractor *extract.Extractor, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		normalizer: normalizer,
		retriever:  retriever,
		extractor:  extractor,
		cfg:        cfg,
		logger:     logger,
	}
}

// Compare retrieves broadly, keeps the best chunk per protocol title and
// summarizes how the protocols differ. Retrieval errors are returned unchanged.
func (e *Engine) Compare(ctx context.Context, query string, filters domain.SearchFilters, maxResults int, opts ...retrieval.Option) (*domain.ComparisonResult, error) {
	maxResults = e.clampMaxResults(maxResults)
	nq := e.normalizer.Normalize(query)

	ctx, span := tracer.Start(ctx, "compare.compare")
	defer span.End()
	span.SetAttributes(
		attribute.Int("compare.max_results", maxResults),
		attribute.Int("compare.condition_count", len(nq.Conditions)),
	)

	variants := e.normalizer.Variants(nq, 0)
	opts = append([]retrieval.Option{
		retrieval.WithThreshold(e.cfg.Threshold),
		retrieval.WithMaxVariants(len(variants)),
	}, opts...)

	result, err := e.retriever.RetrieveMulti(ctx, variants, filters, maxResults*e.cfg.BreadthFactor, opts...)
	if err != nil {
		return nil, fmt.Errorf("compare retrieval: %w", err)
	}

	best := bestPerTitle(result.Hits, maxResults)
	protocols := make([]domain.ComparedProtocol, 0, len(best))
	for _, h := range best {
		protocols = append(protocols, domain.ComparedProtocol{
			Chunk:             h.Chunk,
			Similarity:        h.Similarity,
			Medications:       e.extractor.Medications(h.Chunk.Content),
			Contraindications: e.extractor.Contraindications(h.Chunk.Content),
			KeyPoints:         e.extractor.KeyPoints(h.Chunk.Content, h.Chunk.ProtocolTitle),
		})
	}

	summary := Summarize(protocols)
	e.logger.Info("comparison_completed",
		slog.Int("candidate_count", len(result.Hits)),
		slog.Int("protocol_count", len(protocols)),
		slog.Int("common_medications", len(summary.CommonMedications)),
		slog.Int("dose_variations", len(summary.DoseVariations)))

	return &domain.ComparisonResult{
		Query:           query,
		NormalizedQuery: nq,
		Protocols:       protocols,
		Summary:         summary,
	}, nil
}

func (e *Engine) clampMaxResults(n int) int {
	if n == 0 {
		n = e.cfg.DefaultMaxResults
	}
	return max(1, min(n, maxCompareResults))
}

// bestPerTitle keeps the first hit for each normalized title. Hits arrive sorted
// by descending similarity, so the first is the best and ties keep the earlier one.
func bestPerTitle(hits []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	seen := make(map[string]struct{})
	out := make([]domain.ScoredChunk, 0, min(limit, len(hits)))
	for _, h := range hits {
		key := normalizeTitle(h.Chunk.ProtocolTitle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(whitespacePattern.ReplaceAllString(title, " ")))
}
