package domain

import "context"

// Message is one chat message sent to the generation provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a rendered generation request and the chunks it is grounded on.
type Prompt struct {
	Messages  []Message
	Grounding []ProtocolChunk
}

// LLMClient is the generation collaborator. Its output is untrusted free text.
type LLMClient interface {
	Generate(ctx context.Context, prompt Prompt, maxTokens int) (*LLMResponse, error)
	Version() string
}

// LLMResponse carries the LLM output and whether the generation finished.
type LLMResponse struct {
	Text string
	Done bool
}
