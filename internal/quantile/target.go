package quantile

import (
	"fmt"
	"math"
)

// Target specifies one tracked quantile fraction and the permitted
// rank error around it. Tighter errors cost more summary records.
type Target struct {
	Quantile float64 // fraction in (0,1), e.g. 0.99
	Error    float64 // permitted rank error in (0,1), e.g. 0.001
}

// Validate checks that the target's fraction and error are usable.
func (t Target) Validate() error {
	if math.IsNaN(t.Quantile) || t.Quantile <= 0 || t.Quantile >= 1 {
		return fmt.Errorf("quantile: target fraction %v outside (0, 1)", t.Quantile)
	}
	if math.IsNaN(t.Error) || t.Error <= 0 || t.Error >= 1 {
		return fmt.Errorf("quantile: target error %v outside (0, 1)", t.Error)
	}
	return nil
}

// target is the compiled form of a Target carrying the two width
// coefficients the error-bound function uses: u applies below the
// target rank, v at or above it.
type target struct {
	quantile float64
	epsilon  float64
	u        float64
	v        float64
}

// compileTargets validates the configured targets and precomputes
// their width coefficients. The compiled slice is immutable and shared
// between a summary and its clones.
func compileTargets(targets []Target) ([]target, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("quantile: at least one target required")
	}
	compiled := make([]target, len(targets))
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		compiled[i] = target{
			quantile: t.Quantile,
			epsilon:  t.Error,
			u:        2 * t.Error / (1 - t.Quantile),
			v:        2 * t.Error / t.Quantile,
		}
	}
	return compiled, nil
}
