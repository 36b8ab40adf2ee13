// Package guardrail decides whether a generated answer may reach the user.
//
// Four independent validators (citation, dose, hallucination, confidence) run
// concurrently over the same read-only input. Decide turns their findings into a
// verdict. Any validator error or panic blocks the answer.
package guardrail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/infra/metrics"
	"protocol-rag/internal/usecase/extract"
)

var tracer = otel.Tracer("protocol-rag/usecase/guardrail")

// Gate runs the validators, applies the decision policy and audits every verdict.
type Gate struct {
	validators []Validator
	cfg        Config
	audit      domain.AuditSink
	logger     *slog.Logger
	now        func() time.Time
}

// NewGate creates a gate with the four standard validators.
func NewGate(cfg Config, ex *extract.Extractor, audit domain.AuditSink, logger *slog.Logger) *Gate {
	return NewGateWithValidators(cfg, []Validator{
		NewCitationValidator(ex, cfg),
		NewDoseValidator(ex),
		NewHallucinationValidator(ex, cfg),
		NewConfidenceValidator(ex, cfg),
	}, audit, logger)
}

// NewGateWithValidators creates a gate over a custom validator set.
func NewGateWithValidators(cfg Config, validators []Validator, audit domain.AuditSink, logger *slog.Logger) *Gate {
	return &Gate{
		validators: validators,
		cfg:        cfg,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// Guard returns the verdict for in.Answer. It never returns an error: a gate
// that cannot decide blocks, and a crash anywhere in the gate is audited as a block.
func (g *Gate) Guard(ctx context.Context, in Input) (verdict domain.GuardrailVerdict) {
	ctx, span := tracer.Start(ctx, "guardrail.guard")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordValidatorError("gate")
			g.logger.Error("guardrail_panicked",
				slog.String("request_id", in.RequestID),
				slog.String("panic", fmt.Sprint(r)))
			verdict = blocked(domain.DisclaimerNotFound, fmt.Sprintf("guardrail crashed: %v", r))
			span.SetAttributes(attribute.String("guardrail.decision", string(verdict.Decision)))
			g.finishAfterCrash(in, verdict)
		}
	}()

	findings, err := g.runValidators(ctx, in)
	if err != nil {
		g.logger.Error("guardrail_validator_failed",
			slog.String("request_id", in.RequestID),
			slog.String("error", err.Error()))
		verdict = blocked(domain.DisclaimerNotFound, "guardrail check failed: "+err.Error())
	} else {
		verdict = Decide(findings, g.cfg.DowngradeThreshold)
	}

	span.SetAttributes(
		attribute.String("guardrail.decision", string(verdict.Decision)),
		attribute.Float64("guardrail.confidence", verdict.Confidence),
	)
	g.finish(in, verdict)
	return verdict
}

// finishAfterCrash audits a crash verdict. A second failure is logged, never raised.
func (g *Gate) finishAfterCrash(in Input, verdict domain.GuardrailVerdict) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordAuditFailure("gate_crash")
			g.logger.Error("audit_record_failed",
				slog.String("request_id", in.RequestID),
				slog.String("decision", string(verdict.Decision)),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	g.finish(in, verdict)
}

// Block records a verdict for a request that never produced an answer.
func (g *Gate) Block(in Input, disclaimer domain.DisclaimerType, reason string) domain.GuardrailVerdict {
	verdict := blocked(disclaimer, reason)
	g.finish(in, verdict)
	return verdict
}

func (g *Gate) runValidators(ctx context.Context, in Input) (map[string]PartialVerdict, error) {
	results := make([]PartialVerdict, len(g.validators))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, v := range g.validators {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					metrics.RecordValidatorError(v.Name())
					err = fmt.Errorf("validator %s panicked: %v", v.Name(), r)
				}
			}()
			pv, err := v.Validate(egCtx, in)
			if err != nil {
				metrics.RecordValidatorError(v.Name())
				return fmt.Errorf("validator %s: %w", v.Name(), err)
			}
			pv.Name = v.Name()
			results[i] = pv
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	findings := make(map[string]PartialVerdict, len(results))
	for _, pv := range results {
		findings[pv.Name] = pv
	}
	return findings, nil
}

func (g *Gate) finish(in Input, verdict domain.GuardrailVerdict) {
	metrics.RecordDecision(string(verdict.Decision))
	g.logger.Info("guardrail_verdict",
		slog.String("request_id", in.RequestID),
		slog.String("decision", string(verdict.Decision)),
		slog.Bool("citations_ok", verdict.CitationsOK),
		slog.Bool("dose_ok", verdict.DoseOK),
		slog.Float64("hallucination_score", verdict.HallucinationScore),
		slog.Float64("confidence", verdict.Confidence),
		slog.String("disclaimer", string(verdict.Disclaimer)))

	if g.audit == nil {
		g.logger.Error("audit_sink_missing", slog.String("request_id", in.RequestID))
		metrics.RecordAuditFailure("no_sink")
		return
	}
	ids := make([]int64, len(in.Chunks))
	for i, c := range in.Chunks {
		ids[i] = c.Chunk.ID
	}
	g.audit.Record(domain.AuditEntry{
		ID:                  uuid.New(),
		RequestID:           in.RequestID,
		Query:               in.Query,
		NormalizedQuery:     in.NormalizedQuery,
		RetrievedChunkIDs:   ids,
		GeneratedAnswerHash: HashAnswer(in.Answer),
		Verdict:             verdict,
		Timestamp:           g.now().UTC(),
	})
}

// HashAnswer is the audit fingerprint of a generated answer.
func HashAnswer(answer string) string {
	sum := sha256.Sum256([]byte(answer))
	return hex.EncodeToString(sum[:])
}
