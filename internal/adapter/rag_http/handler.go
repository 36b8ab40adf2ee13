package rag_http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"protocol-rag/internal/adapter/rag_http/openapi"
	"protocol-rag/internal/domain"
	applog "protocol-rag/internal/infra/logger"
	"protocol-rag/internal/usecase"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	orchestrator usecase.ProtocolOrchestrator
	db           Pinger
	logger       *slog.Logger
}

func NewHandler(orchestrator usecase.ProtocolOrchestrator, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		db:           db,
		logger:       logger,
	}
}

// Register mounts the API routes. validator guards the documented operations and may be nil.
func (h *Handler) Register(e *echo.Echo, validator echo.MiddlewareFunc) {
	var mws []echo.MiddlewareFunc
	if validator != nil {
		mws = append(mws, validator)
	}
	api := e.Group("/v1/protocols", mws...)
	api.POST("/ask", h.Ask)
	api.POST("/compare", h.Compare)

	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// AskRequest is the body of POST /v1/protocols/ask.
type AskRequest struct {
	Query    string  `json:"query"`
	State    *string `json:"state,omitempty"`
	AgencyID *int64  `json:"agency_id,omitempty"`
}

// CompareRequest is the body of POST /v1/protocols/compare.
type CompareRequest struct {
	Query      string  `json:"query"`
	State      *string `json:"state,omitempty"`
	MaxResults *int    `json:"max_results,omitempty"`
}

type Citation struct {
	ChunkID        int64   `json:"chunk_id"`
	AgencyID       int64   `json:"agency_id"`
	AgencyName     string  `json:"agency_name,omitempty"`
	ProtocolNumber string  `json:"protocol_number"`
	ProtocolTitle  string  `json:"protocol_title"`
	Section        string  `json:"section,omitempty"`
	Similarity     float64 `json:"similarity"`
}

type AskResponse struct {
	RequestID     string                  `json:"request_id"`
	Answer        string                  `json:"answer"`
	Message       string                  `json:"message,omitempty"`
	Verdict       domain.GuardrailVerdict `json:"verdict"`
	CitedChunkIDs []int64                 `json:"cited_chunk_ids"`
	Citations     []Citation              `json:"citations"`
}

// Answer a protocol question through the guardrail gate
// (POST /v1/protocols/ask)
func (h *Handler) Ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, openapi.ErrorResponse{Error: "invalid_request", Message: "invalid request body"})
	}

	input := usecase.AskInput{
		Query:     req.Query,
		RequestID: requestID(c),
	}
	if req.State != nil {
		input.Filters.StateCode = strings.ToUpper(*req.State)
	}
	if req.AgencyID != nil {
		input.Filters.AgencyID = *req.AgencyID
	}

	ctx := applog.WithRequestID(applog.WithFlow(c.Request().Context(), "ask"), input.RequestID)
	out, err := h.orchestrator.Ask(ctx, input)
	if err != nil {
		return h.writeError(ctx, c, err)
	}

	ids := out.CitedChunkIDs
	if ids == nil {
		ids = []int64{}
	}
	citations := make([]Citation, 0, len(out.Citations))
	for _, hit := range out.Citations {
		citations = append(citations, Citation{
			ChunkID:        hit.Chunk.ID,
			AgencyID:       hit.Chunk.AgencyID,
			AgencyName:     hit.Chunk.AgencyName,
			ProtocolNumber: hit.Chunk.ProtocolNumber,
			ProtocolTitle:  hit.Chunk.ProtocolTitle,
			Section:        hit.Chunk.Section,
			Similarity:     hit.Similarity,
		})
	}

	return c.JSON(http.StatusOK, AskResponse{
		RequestID:     out.RequestID,
		Answer:        out.Answer,
		Message:       out.Message,
		Verdict:       out.Verdict,
		CitedChunkIDs: ids,
		Citations:     citations,
	})
}

// Compare protocols across agencies
// (POST /v1/protocols/compare)
func (h *Handler) Compare(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, openapi.ErrorResponse{Error: "invalid_request", Message: "invalid request body"})
	}

	input := usecase.CompareInput{
		Query:     req.Query,
		RequestID: requestID(c),
	}
	if req.State != nil {
		input.Filters.StateCode = strings.ToUpper(*req.State)
	}
	if req.MaxResults != nil {
		input.MaxResults = *req.MaxResults
	}

	ctx := applog.WithRequestID(applog.WithFlow(c.Request().Context(), "compare"), input.RequestID)
	result, err := h.orchestrator.Compare(ctx, input)
	if err != nil {
		return h.writeError(ctx, c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(c echo.Context) error {
	if h.db == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("readiness_check_failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the error taxonomy onto HTTP statuses. Cause details stay in the logs.
func (h *Handler) writeError(ctx context.Context, c echo.Context, err error) error {
	status, code, message := http.StatusInternalServerError, "internal", "internal error"
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		status, code, message = http.StatusBadRequest, "empty_query", domain.ErrEmptyQuery.Error()
	case usecase.IsTimeout(err):
		status, code, message = http.StatusGatewayTimeout, "timeout", "the request timed out; consult the primary protocol source"
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		status, code, message = http.StatusServiceUnavailable, "retrieval_unavailable", "protocol search is unavailable; consult the primary protocol source"
	case errors.Is(err, domain.ErrGenerationUnavailable):
		status, code, message = http.StatusServiceUnavailable, "generation_unavailable", "unable to answer safely right now; consult the primary protocol source"
	}
	if status >= http.StatusInternalServerError {
		applog.FromContext(ctx, h.logger).Error("request_failed",
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	return c.JSON(status, openapi.ErrorResponse{Error: code, Message: message})
}

func requestID(c echo.Context) string {
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
