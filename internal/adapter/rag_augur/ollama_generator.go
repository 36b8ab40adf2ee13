package rag_augur

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"protocol-rag/internal/domain"
)

const (
	generationTemperature = 0.0
	keepAliveSeconds      = 600
)

// ErrNoGrounding is returned when a prompt carries no grounding chunks.
var ErrNoGrounding = errors.New("generation requires grounding chunks")

var generationFormat = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{
			"type": "string",
		},
		"citations": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chunk_id": map[string]any{"type": "string"},
				},
				"required": []string{"chunk_id"},
			},
		},
		"fallback": map[string]any{
			"type": "boolean",
		},
		"reason": map[string]any{
			"type": "string",
		},
	},
	"required": []string{"answer", "citations", "fallback", "reason"},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive int            `json:"keep_alive"`
	Format    map[string]any `json:"format"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// OllamaGenerator sends prompts to Ollama's chat endpoint and returns structured text.
type OllamaGenerator struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewOllamaGenerator constructs a generator using the provided endpoint and model name.
func NewOllamaGenerator(baseURL, model string, client *http.Client, logger *slog.Logger) *OllamaGenerator {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &OllamaGenerator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  client,
		logger:  logger,
	}
}

func (g *OllamaGenerator) buildOptions(maxTokens int) map[string]any {
	opts := map[string]any{
		"temperature": generationTemperature,
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	return opts
}

// Generate sends the prompt to Ollama and returns the assistant message.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt domain.Prompt, maxTokens int) (*domain.LLMResponse, error) {
	if len(prompt.Grounding) == 0 {
		return nil, ErrNoGrounding
	}

	messages := make([]chatMessage, len(prompt.Messages))
	for i, m := range prompt.Messages {
		messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	reqBody := chatRequest{
		Model:     g.Model,
		Messages:  messages,
		KeepAlive: keepAliveSeconds,
		Format:    generationFormat,
		Options:   g.buildOptions(maxTokens),
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.Client.Do(req)
	if err != nil {
		g.logger.Error("ollama_generate_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("failed to call generation endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}

	content := strings.TrimSpace(chatResp.Message.Content)
	g.logger.Info("ollama_generate_completed",
		slog.String("model", g.Model),
		slog.Int("grounding_count", len(prompt.Grounding)),
		slog.Int("content_length", len(content)),
		slog.Bool("done", chatResp.Done),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return &domain.LLMResponse{
		Text: content,
		Done: chatResp.Done,
	}, nil
}

// Version returns the wrapped model name.
func (g *OllamaGenerator) Version() string {
	return g.Model
}

var _ domain.LLMClient = (*OllamaGenerator)(nil)
