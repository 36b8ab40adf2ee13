// Package retrieval implements semantic retrieval over protocol chunks with
// multi-variant fusion, optional re-ranking and result caching.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/infra/metrics"
)

var tracer = otel.Tracer("protocol-rag/usecase/retrieval")

// Engine retrieves protocol chunks for normalized queries.
type Engine struct {
	encoder  domain.VectorEncoder
	store    domain.ProtocolChunkRepository
	cache    Cache
	reranker domain.Reranker
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine. cache and reranker may be nil.
func NewEngine(
	encoder domain.VectorEncoder,
	store domain.ProtocolChunkRepository,
	cache Cache,
	reranker domain.Reranker,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cache == nil {
		cache = noopCache{}
	}
	return &Engine{
		encoder:  encoder,
		store:    store,
		cache:    cache,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

type options struct {
	threshold   float64
	maxVariants int
	rerank      bool
	requestID   string
}

// Option adjusts a single retrieval call.
type Option func(*options)

// WithThreshold overrides the similarity threshold for one call.
func WithThreshold(threshold float64) Option {
	return func(o *options) { o.threshold = threshold }
}

// WithMaxVariants overrides the fusion variant cap for one call.
func WithMaxVariants(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxVariants = n
		}
	}
}

// WithoutRerank skips the re-rank stage for one call.
func WithoutRerank() Option {
	return func(o *options) { o.rerank = false }
}

// WithRequestID tags log lines of one call.
func WithRequestID(id string) Option {
	return func(o *options) { o.requestID = id }
}

// Retrieve runs a single-query search.
func (e *Engine) Retrieve(
	ctx context.Context,
	query domain.NormalizedQuery,
	filters domain.SearchFilters,
	limit int,
	opts ...Option,
) (*domain.RetrievalResult, error) {
	return e.RetrieveMulti(ctx, []domain.NormalizedQuery{query}, filters, limit, opts...)
}

// RetrieveMulti searches every variant concurrently and fuses the results by
// maximum similarity. A failed variant is dropped; the call fails only when all of
// them fail, with ErrRetrievalTimeout if the deadline expired and
// ErrRetrievalUnavailable otherwise.
func (e *Engine) RetrieveMulti(
	ctx context.Context,
	queries []domain.NormalizedQuery,
	filters domain.SearchFilters,
	limit int,
	opts ...Option,
) (*domain.RetrievalResult, error) {
	o := options{
		threshold:   e.cfg.Threshold,
		maxVariants: e.cfg.MaxVariants,
		rerank:      e.cfg.Rerank.Enabled,
	}
	for _, opt := range opts {
		opt(&o)
	}

	variants := uniqueVariants(queries, o.maxVariants)
	if limit <= 0 || len(variants) == 0 {
		return &domain.RetrievalResult{Hits: []domain.ScoredChunk{}}, nil
	}

	ctx, span := tracer.Start(ctx, "retrieval.retrieve_multi")
	defer span.End()
	span.SetAttributes(
		attribute.Int("retrieval.variant_count", len(variants)),
		attribute.Int("retrieval.limit", limit),
		attribute.Float64("retrieval.threshold", o.threshold),
	)

	start := time.Now()
	fanCtx, cancel := context.WithTimeout(ctx, e.cfg.FanOutTimeout)
	defer cancel()

	sets, errs := e.searchVariants(fanCtx, o.requestID, variants, filters, limit, o.threshold)

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(variants) {
		err := classifyFailure(fanCtx, errs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "all variants failed")
		return nil, err
	}

	hits := fuseByMax(sets)
	if o.rerank && e.reranker != nil && len(hits) > 0 {
		hits = e.rerank(ctx, o.requestID, variants[0].Text, hits)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	e.logger.Info("retrieval_completed",
		slog.String("request_id", o.requestID),
		slog.Int("variant_count", len(variants)),
		slog.Int("failed_variants", failed),
		slog.Int("hit_count", len(hits)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.Int("retrieval.hit_count", len(hits)))

	return &domain.RetrievalResult{Hits: hits}, nil
}

// searchVariant runs one variant through the cache, the encoder and the store.
func (e *Engine) searchVariant(
	ctx context.Context,
	text string,
	filters domain.SearchFilters,
	limit int,
	threshold float64,
) ([]domain.ScoredChunk, error) {
	key := CacheKey(text, filters, limit, threshold)
	if hits, ok := e.cache.Get(ctx, key); ok {
		metrics.RecordCacheLookup(true)
		return hits, nil
	}
	metrics.RecordCacheLookup(false)

	ctx, span := tracer.Start(ctx, "retrieval.variant")
	defer span.End()

	vector, err := e.embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, &stageError{stage: "embed", err: err}
	}

	raw, err := e.store.Search(ctx, vector, filters, max(limit, e.cfg.SearchLimit))
	if err != nil {
		span.RecordError(err)
		return nil, &stageError{stage: "search", err: fmt.Errorf("search protocol chunks: %w", err)}
	}

	hits := filterHits(raw, threshold)
	e.cache.Set(ctx, key, hits)
	return hits, nil
}

// embed encodes text with bounded exponential-backoff retry.
// Context errors are not retried.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.EmbedInitialBackoff
	b.MaxInterval = e.cfg.EmbedMaxBackoff

	attempt := 0
	vector, err := backoff.Retry(ctx, func() ([]float32, error) {
		attempt++
		vectors, err := e.encoder.Encode(ctx, []string{text})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, backoff.Permanent(err)
			}
			e.logger.Debug("embed_attempt_failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return nil, err
		}
		if len(vectors) != 1 || len(vectors[0]) == 0 {
			return nil, backoff.Permanent(fmt.Errorf("encoder returned %d vectors for 1 text", len(vectors)))
		}
		return vectors[0], nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.cfg.EmbedMaxAttempts))
	if err != nil {
		return nil, fmt.Errorf("embed query after %d attempts: %w", attempt, err)
	}
	return vector, nil
}

func classifyFailure(ctx context.Context, errs []error) error {
	joined := errors.Join(errs...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(joined, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrRetrievalTimeout, joined)
	}
	return fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, joined)
}

func uniqueVariants(queries []domain.NormalizedQuery, maxVariants int) []domain.NormalizedQuery {
	seen := make(map[string]struct{}, len(queries))
	out := make([]domain.NormalizedQuery, 0, len(queries))
	for _, q := range queries {
		if q.Text == "" {
			continue
		}
		if _, ok := seen[q.Text]; ok {
			continue
		}
		if maxVariants > 0 && len(out) >= maxVariants {
			break
		}
		seen[q.Text] = struct{}{}
		out = append(out, q)
	}
	return out
}

// stageError records which collaborator a variant failed in.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}
