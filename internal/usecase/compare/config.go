package compare

import "fmt"

const maxCompareResults = 10

// Config holds comparison breadth parameters.
type Config struct {
	// Threshold is lower than single-answer retrieval; breadth matters more than precision.
	Threshold float64
	// BreadthFactor multiplies maxResults to size the candidate pool.
	BreadthFactor int
	// DefaultMaxResults applies when the caller passes zero.
	DefaultMaxResults int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         0.25,
		BreadthFactor:     3,
		DefaultMaxResults: 5,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("compare threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.BreadthFactor < 1 {
		return fmt.Errorf("compare breadth factor must be at least 1, got %d", c.BreadthFactor)
	}
	if c.DefaultMaxResults < 1 || c.DefaultMaxResults > maxCompareResults {
		return fmt.Errorf("compare default max results must be in [1,%d], got %d", maxCompareResults, c.DefaultMaxResults)
	}
	return nil
}
