package guardrail

import "fmt"

// Config holds guardrail thresholds.
type Config struct {
	// DowngradeThreshold is the confidence below which an answer is downgraded.
	DowngradeThreshold float64
	// ClaimOverlap is the content-token overlap a claim needs with one chunk.
	ClaimOverlap float64
	// MaxHallucination is the score above which the hallucination check fails.
	MaxHallucination float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DowngradeThreshold: 0.55,
		ClaimOverlap:       0.7,
		MaxHallucination:   0.5,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.DowngradeThreshold < 0 || c.DowngradeThreshold > 1 {
		return fmt.Errorf("guardrail downgrade threshold must be in [0,1], got %v", c.DowngradeThreshold)
	}
	if c.ClaimOverlap <= 0 || c.ClaimOverlap > 1 {
		return fmt.Errorf("guardrail claim overlap must be in (0,1], got %v", c.ClaimOverlap)
	}
	if c.MaxHallucination < 0 || c.MaxHallucination > 1 {
		return fmt.Errorf("guardrail max hallucination must be in [0,1], got %v", c.MaxHallucination)
	}
	return nil
}
