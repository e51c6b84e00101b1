// Package tasteid composes the signature, pattern, consolidation and drift
// components into one recompute run and persists its output.
package tasteid

import (
	"github.com/thebtf/tasteid/internal/consolidation"
	"github.com/thebtf/tasteid/internal/drift"
	"github.com/thebtf/tasteid/internal/pattern"
	"github.com/thebtf/tasteid/internal/signature"
)

// Config holds the thresholds of every engine component.
type Config struct {
	Signature     signature.Config     `json:"signature"`
	Pattern       pattern.Config       `json:"pattern"`
	Consolidation consolidation.Config `json:"consolidation"`
	Drift         drift.Config         `json:"drift"`
	// MinEvents is the smallest history a recompute accepts. It cannot go below
	// MinRecomputeEvents.
	MinEvents int `json:"min_events" validate:"min=3"`
	// PreviewMinEvents is the smallest history a signature preview accepts.
	PreviewMinEvents int `json:"preview_min_events" validate:"min=1"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Signature:        signature.DefaultConfig(),
		Pattern:          pattern.DefaultConfig(),
		Consolidation:    consolidation.DefaultConfig(),
		Drift:            drift.DefaultConfig(),
		MinEvents:        3,
		PreviewMinEvents: 1,
	}
}
