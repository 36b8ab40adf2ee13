package retrieval

import (
	"fmt"
	"time"
)

// Config holds retrieval and fusion parameters.
type Config struct {
	// Threshold is the minimum similarity a hit must reach.
	Threshold float64
	// SearchLimit is the per-variant over-fetch size sent to the vector store.
	SearchLimit int
	// MaxVariants caps the number of fusion variants searched per request.
	MaxVariants int
	// FanOutTimeout bounds the whole fusion fan-out.
	FanOutTimeout time.Duration

	EmbedMaxAttempts    uint
	EmbedInitialBackoff time.Duration
	EmbedMaxBackoff     time.Duration

	Rerank RerankConfig
}

// RerankConfig holds reranking stage parameters.
type RerankConfig struct {
	Enabled bool
	TopK    int
	Timeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:           0.35,
		SearchLimit:         20,
		MaxVariants:         4,
		FanOutTimeout:       8 * time.Second,
		EmbedMaxAttempts:    3,
		EmbedInitialBackoff: 100 * time.Millisecond,
		EmbedMaxBackoff:     1 * time.Second,
		Rerank: RerankConfig{
			Enabled: false,
			TopK:    30,
			Timeout: 5 * time.Second,
		},
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("retrieval threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("retrieval search limit must be positive, got %d", c.SearchLimit)
	}
	if c.MaxVariants <= 0 {
		return fmt.Errorf("retrieval max variants must be positive, got %d", c.MaxVariants)
	}
	if c.FanOutTimeout <= 0 {
		return fmt.Errorf("retrieval fan-out timeout must be positive")
	}
	if c.EmbedMaxAttempts == 0 {
		return fmt.Errorf("embed max attempts must be at least 1")
	}
	if c.Rerank.Enabled && (c.Rerank.TopK <= 0 || c.Rerank.Timeout <= 0) {
		return fmt.Errorf("rerank top k and timeout must be positive when rerank is enabled")
	}
	return nil
}
