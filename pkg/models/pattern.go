package models

import "time"

// PatternCategory groups patterns by the behavior they describe.
type PatternCategory string

const (
	// PatternCategoryExploration covers how the user finds new music.
	PatternCategoryExploration PatternCategory = "exploration"
	// PatternCategoryLoyalty covers returning to known artists and genres.
	PatternCategoryLoyalty PatternCategory = "loyalty"
	// PatternCategoryRating covers how the user hands out scores.
	PatternCategoryRating PatternCategory = "rating"
	// PatternCategoryTiming covers when the user listens and rates.
	PatternCategoryTiming PatternCategory = "timing"
	// PatternCategoryMood covers vibe-driven listening.
	PatternCategoryMood PatternCategory = "mood"
)

// PatternStatus represents the lifecycle status of a pattern.
type PatternStatus string

const (
	// PatternStatusNone marks a detector that has no pattern instance yet.
	PatternStatusNone PatternStatus = ""
	// PatternStatusEmerging means the behavior was observed but not yet confirmed.
	PatternStatusEmerging PatternStatus = "emerging"
	// PatternStatusConfirmed means the behavior held over a long enough span.
	PatternStatusConfirmed PatternStatus = "confirmed"
	// PatternStatusFaded means the behavior stopped; kept so it can be resurrected.
	PatternStatusFaded PatternStatus = "faded"
)

// Valid reports whether s is one of the persisted statuses.
func (s PatternStatus) Valid() bool {
	switch s {
	case PatternStatusEmerging, PatternStatusConfirmed, PatternStatusFaded:
		return true
	}
	return false
}

// Pattern is a recurring behavioral motif learned from the rating history.
// ID is the detector id, so the same behavior always maps to the same pattern.
type Pattern struct {
	FirstSeenAt     time.Time       `json:"first_seen_at"`
	LastSeenAt      time.Time       `json:"last_seen_at"`
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Category        PatternCategory `json:"category"`
	Status          PatternStatus   `json:"status"`
	Evidence        []string        `json:"-"` // supporting event ids from the current run only
	Confidence      float64         `json:"confidence"`
	SupportCount    int             `json:"support_count"`
	EventsSinceSeen int             `json:"events_since_seen"`
}

// IsActive reports whether the pattern should appear in active listings.
func (p *Pattern) IsActive() bool {
	return p.Status == PatternStatusEmerging || p.Status == PatternStatusConfirmed
}

// ObservationSpan is the stretch of history over which the behavior was observed.
func (p *Pattern) ObservationSpan() time.Duration {
	if p.FirstSeenAt.IsZero() || p.LastSeenAt.IsZero() {
		return 0
	}
	return p.LastSeenAt.Sub(p.FirstSeenAt)
}

// Importance ranks patterns for display: confirmed patterns outrank emerging
// ones at equal confidence, and faded patterns sink to the bottom.
func (p *Pattern) Importance() float64 {
	weight := 0.0
	switch p.Status {
	case PatternStatusConfirmed:
		weight = 1.0
	case PatternStatusEmerging:
		weight = 0.6
	case PatternStatusFaded:
		weight = 0.2
	}
	return weight * p.Confidence
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	c := *p
	if p.Evidence != nil {
		c.Evidence = append([]string(nil), p.Evidence...)
	}
	return &c
}
