package rag_augur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"protocol-rag/internal/domain"
)

const defaultEmbedBatchSize = 32

// OllamaEmbedder calls Ollama's /api/embed endpoint. Requests are batched and
// rate limited on the client side.
type OllamaEmbedder struct {
	BaseURL   string
	Model     string
	BatchSize int
	Client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewOllamaEmbedder creates an embedder. A nil limiter disables rate limiting.
func NewOllamaEmbedder(baseURL, model string, client *http.Client, limiter *rate.Limiter, logger *slog.Logger) *OllamaEmbedder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OllamaEmbedder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Model:     model,
		BatchSize: defaultEmbedBatchSize,
		Client:    client,
		limiter:   limiter,
		logger:    logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Encode returns one vector per text, in input order.
func (e *OllamaEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	batch := e.BatchSize
	if batch <= 0 {
		batch = defaultEmbedBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for startIdx := 0; startIdx < len(texts); startIdx += batch {
		end := min(startIdx+batch, len(texts))
		vectors, err := e.encodeBatch(ctx, texts[startIdx:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *OllamaEmbedder) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed rate limit wait: %w", err)
		}
	}
	start := time.Now()

	jsonData, err := json.Marshal(embedRequest{Model: e.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embed", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		e.logger.Error("ollama_embed_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e.logger.Error("ollama_embed_bad_status",
			slog.Int("status", resp.StatusCode),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var respBody embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respBody.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(respBody.Embeddings), len(texts))
	}

	e.logger.Debug("ollama_embed_completed",
		slog.Int("embedding_count", len(respBody.Embeddings)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return respBody.Embeddings, nil
}

func (e *OllamaEmbedder) Version() string {
	return e.Model
}

var _ domain.VectorEncoder = (*OllamaEmbedder)(nil)
