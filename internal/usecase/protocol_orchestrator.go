package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/infra/metrics"
	"protocol-rag/internal/usecase/guardrail"
	"protocol-rag/internal/usecase/normalize"
	"protocol-rag/internal/usecase/retrieval"
)

var tracer = otel.Tracer("protocol-rag/usecase")

// BlockedMessage is returned in place of an answer that did not pass the gate.
var BlockedMessage = domain.DisclaimerNotFound.Text()

// AskInput is one protocol question.
type AskInput struct {
	Query     string
	Filters   domain.SearchFilters
	RequestID string
}

// AskOutput is a guarded answer. Answer is empty when the verdict is block.
type AskOutput struct {
	RequestID       string
	Answer          string
	Message         string
	Verdict         domain.GuardrailVerdict
	CitedChunkIDs   []int64
	Citations       []domain.ScoredChunk
	NormalizedQuery domain.NormalizedQuery
}

// CompareInput is one cross-protocol comparison request.
type CompareInput struct {
	Query      string
	Filters    domain.SearchFilters
	MaxResults int
	RequestID  string
}

// Retriever is the fusion retrieval the ask flow runs on.
type Retriever interface {
	RetrieveMulti(ctx context.Context, queries []domain.NormalizedQuery, filters domain.SearchFilters, limit int, opts ...retrieval.Option) (*domain.RetrievalResult, error)
}

// Comparer builds cross-protocol comparisons.
type Comparer interface {
	Compare(ctx context.Context, query string, filters domain.SearchFilters, maxResults int, opts ...retrieval.Option) (*domain.ComparisonResult, error)
}

// Guard is the guardrail gate every generated answer passes through.
type Guard interface {
	Guard(ctx context.Context, in guardrail.Input) domain.GuardrailVerdict
	Block(in guardrail.Input, disclaimer domain.DisclaimerType, reason string) domain.GuardrailVerdict
}

// ProtocolOrchestrator exposes the ask and compare flows.
type ProtocolOrchestrator interface {
	Ask(ctx context.Context, input AskInput) (*AskOutput, error)
	Compare(ctx context.Context, input CompareInput) (*domain.ComparisonResult, error)
}

// OrchestratorConfig tunes the ask flow.
type OrchestratorConfig struct {
	AnswerLimit     int
	MaxTokens       int
	PromptVersion   string
	GenerateTimeout time.Duration
}

// DefaultOrchestratorConfig returns the production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		AnswerLimit:     5,
		MaxTokens:       768,
		PromptVersion:   "protocol-v1",
		GenerateTimeout: 30 * time.Second,
	}
}

// Validate checks the orchestrator configuration.
func (c OrchestratorConfig) Validate() error {
	if c.AnswerLimit <= 0 {
		return fmt.Errorf("answer limit must be positive, got %d", c.AnswerLimit)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.PromptVersion == "" {
		return fmt.Errorf("prompt version is required")
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("generate timeout must be positive, got %s", c.GenerateTimeout)
	}
	return nil
}

type protocolOrchestrator struct {
	normalizer    *normalize.Normalizer
	retriever     Retriever
	comparer      Comparer
	gate          Guard
	llmClient     domain.LLMClient
	promptBuilder PromptBuilder
	validator     OutputValidator
	cfg           OrchestratorConfig
	logger        *slog.Logger
}

// NewProtocolOrchestrator wires together the components of both flows.
func NewProtocolOrchestrator(
	normalizer *normalize.Normalizer,
	retriever Retriever,
	comparer Comparer,
	gate Guard,
	llmClient domain.LLMClient,
	promptBuilder PromptBuilder,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) ProtocolOrchestrator {
	return &protocolOrchestrator{
		normalizer:    normalizer,
		retriever:     retriever,
		comparer:      comparer,
		gate:          gate,
		llmClient:     llmClient,
		promptBuilder: promptBuilder,
		validator:     NewOutputValidator(),
		cfg:           cfg,
		logger:        logger,
	}
}

// Ask answers a protocol question. It returns an error only when retrieval or
// generation failed; a blocked answer is a successful response.
func (o *protocolOrchestrator) Ask(ctx context.Context, input AskInput) (*AskOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "orchestrator.ask")
	defer span.End()
	span.SetAttributes(attribute.String("protocol.request.id", requestID))

	start := time.Now()
	out, err := o.ask(ctx, requestID, input)
	status := "error"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ask failed")
		o.logger.Error("ask_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
	} else {
		status = string(out.Verdict.Decision)
		span.SetAttributes(attribute.String("guardrail.decision", status))
	}
	metrics.RecordFlow("ask", status, time.Since(start).Seconds())
	return out, err
}

func (o *protocolOrchestrator) ask(ctx context.Context, requestID string, input AskInput) (*AskOutput, error) {
	nq := o.normalizer.Normalize(input.Query)
	gateInput := guardrail.Input{
		RequestID:       requestID,
		Query:           input.Query,
		NormalizedQuery: nq.Text,
	}

	result, err := o.retriever.RetrieveMulti(ctx, o.normalizer.Variants(nq, 0), input.Filters, o.cfg.AnswerLimit,
		retrieval.WithRequestID(requestID))
	if err != nil {
		return nil, err
	}
	if len(result.Hits) == 0 {
		verdict := o.gate.Block(gateInput, domain.DisclaimerNotFound, "no protocol matched the query")
		return blockedOutput(requestID, nq, verdict), nil
	}

	messages, err := o.promptBuilder.Build(PromptInput{
		Query:         input.Query,
		PromptVersion: o.cfg.PromptVersion,
		Hits:          result.Hits,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	grounding := make([]domain.ProtocolChunk, len(result.Hits))
	for i, h := range result.Hits {
		grounding[i] = h.Chunk
	}

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()
	resp, err := o.llmClient.Generate(genCtx, domain.Prompt{Messages: messages, Grounding: grounding}, o.cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response", domain.ErrGenerationUnavailable)
	}
	if !resp.Done {
		o.logger.Warn("generation_truncated", slog.String("request_id", requestID))
	}

	parsed, err := o.validator.Validate(resp.Text, result.Hits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	}
	if len(parsed.UnknownCitations) > 0 {
		o.logger.Warn("generation_unknown_citations",
			slog.String("request_id", requestID),
			slog.String("chunk_ids", strings.Join(parsed.UnknownCitations, ",")))
	}
	if parsed.Fallback {
		reason := "generator found no answer in the retrieved protocols"
		if parsed.Reason != "" {
			reason += ": " + parsed.Reason
		}
		verdict := o.gate.Block(gateInput, domain.DisclaimerNotFound, reason)
		return blockedOutput(requestID, nq, verdict), nil
	}

	cited := selectCited(result.Hits, parsed.CitedChunkIDs)
	gateInput.Answer = parsed.Answer
	gateInput.Chunks = cited
	verdict := o.gate.Guard(ctx, gateInput)

	switch verdict.Decision {
	case domain.DecisionRelease:
		return &AskOutput{
			RequestID:       requestID,
			Answer:          parsed.Answer,
			Verdict:         verdict,
			CitedChunkIDs:   parsed.CitedChunkIDs,
			Citations:       cited,
			NormalizedQuery: nq,
		}, nil
	case domain.DecisionDowngrade:
		message := verdict.Disclaimer.Text()
		return &AskOutput{
			RequestID:       requestID,
			Answer:          parsed.Answer + "\n\n" + message,
			Message:         message,
			Verdict:         verdict,
			CitedChunkIDs:   parsed.CitedChunkIDs,
			Citations:       cited,
			NormalizedQuery: nq,
		}, nil
	default:
		return blockedOutput(requestID, nq, verdict), nil
	}
}

// Compare returns the structured comparison. It never calls the LLM.
func (o *protocolOrchestrator) Compare(ctx context.Context, input CompareInput) (*domain.ComparisonResult, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "orchestrator.compare")
	defer span.End()
	span.SetAttributes(attribute.String("protocol.request.id", requestID))

	start := time.Now()
	result, err := o.comparer.Compare(ctx, input.Query, input.Filters, input.MaxResults, retrieval.WithRequestID(requestID))
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "compare failed")
		o.logger.Error("compare_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
	} else {
		o.logger.Info("compare_completed",
			slog.String("request_id", requestID),
			slog.Int("protocol_count", len(result.Protocols)),
			slog.Int("dose_variations", len(result.Summary.DoseVariations)))
	}
	metrics.RecordFlow("compare", status, time.Since(start).Seconds())
	return result, err
}

func blockedOutput(requestID string, nq domain.NormalizedQuery, verdict domain.GuardrailVerdict) *AskOutput {
	return &AskOutput{
		RequestID:       requestID,
		Message:         BlockedMessage,
		Verdict:         verdict,
		CitedChunkIDs:   []int64{},
		Citations:       []domain.ScoredChunk{},
		NormalizedQuery: nq,
	}
}

func selectCited(hits []domain.ScoredChunk, ids []int64) []domain.ScoredChunk {
	byID := make(map[int64]domain.ScoredChunk, len(hits))
	for _, h := range hits {
		byID[h.Chunk.ID] = h
	}
	cited := make([]domain.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		if h, ok := byID[id]; ok {
			cited = append(cited, h)
		}
	}
	return cited
}

// IsTimeout reports whether err is a deadline failure of either flow.
func IsTimeout(err error) bool {
	return errors.Is(err, domain.ErrRetrievalTimeout) || errors.Is(err, context.DeadlineExceeded)
}
