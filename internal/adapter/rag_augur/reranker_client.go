package rag_augur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"protocol-rag/internal/domain"
)

// maxRerankTextBytes bounds the passage text sent per candidate.
const maxRerankTextBytes = 2048

// RerankerConfig configures the cross-encoder client.
type RerankerConfig struct {
	BaseURL string
	Model   string
	// TopN caps the results kept per call. Zero keeps all of them.
	TopN int
	// MinScore drops candidates the cross-encoder scores below it.
	MinScore float64
	Timeout  time.Duration
}

type rerankDocument struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

type rerankRequest struct {
	Query     string           `json:"query"`
	Documents []rerankDocument `json:"documents"`
	Model     string           `json:"model,omitempty"`
	TopN      int              `json:"top_n,omitempty"`
	MinScore  float64          `json:"min_score,omitempty"`
}

type rerankResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
	Model   string         `json:"model"`
}

// RerankerClient scores protocol chunks against a question with a cross-encoder
// served at /v1/rerank. Candidates are identified by chunk id in both directions.
type RerankerClient struct {
	cfg    RerankerConfig
	client *http.Client
	logger *slog.Logger
}

// NewRerankerClient constructs a RerankerClient. A nil client gets a default one
// bounded by cfg.Timeout.
func NewRerankerClient(cfg RerankerConfig, client *http.Client, logger *slog.Logger) *RerankerClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RerankerClient{cfg: cfg, client: client, logger: logger}
}

// Rerank returns the candidates the cross-encoder kept, by score descending.
// Candidates scored below MinScore are omitted; at most TopN are returned.
func (c *RerankerClient) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankResult, error) {
	if len(candidates) == 0 {
		return []domain.RerankResult{}, nil
	}

	start := time.Now()
	order := make(map[int64]int, len(candidates))
	docs := make([]rerankDocument, 0, len(candidates))
	for i, cand := range candidates {
		if _, dup := order[cand.ID]; dup {
			continue
		}
		order[cand.ID] = i
		docs = append(docs, rerankDocument{
			ID:    strconv.FormatInt(cand.ID, 10),
			Title: cand.Title,
			Text:  truncateText(cand.Content, maxRerankTextBytes),
		})
	}

	payload, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: docs,
		Model:     c.cfg.Model,
		TopN:      c.cfg.TopN,
		MinScore:  c.cfg.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("rerank_request_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("failed to call rerank endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	results := make([]domain.RerankResult, 0, len(rr.Results))
	seen := make(map[int64]struct{}, len(rr.Results))
	for _, r := range rr.Results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rerank result has non-numeric chunk id %q", r.ID)
		}
		if _, ok := order[id]; !ok {
			return nil, fmt.Errorf("rerank result references unknown chunk %d", id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("rerank result repeats chunk %d", id)
		}
		seen[id] = struct{}{}
		if r.Score < c.cfg.MinScore {
			continue
		}
		results = append(results, domain.RerankResult{ID: id, Score: r.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return order[results[i].ID] < order[results[j].ID]
	})
	if c.cfg.TopN > 0 && len(results) > c.cfg.TopN {
		results = results[:c.cfg.TopN]
	}

	c.logger.Info("rerank_completed",
		slog.String("model", c.cfg.Model),
		slog.Int("candidate_count", len(docs)),
		slog.Int("kept_count", len(results)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return results, nil
}

// ModelName returns the cross-encoder model name.
func (c *RerankerClient) ModelName() string {
	return c.cfg.Model
}

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ domain.Reranker = (*RerankerClient)(nil)
