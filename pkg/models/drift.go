package models

import "time"

// DriftKind classifies a drift alert.
type DriftKind string

const (
	// DriftPatternDisappeared means a confirmed pattern stopped showing up.
	DriftPatternDisappeared DriftKind = "pattern_disappeared"
	// DriftContradiction means two mutually exclusive patterns are both confirmed.
	DriftContradiction DriftKind = "contradiction"
	// DriftSignatureDrift means a signature dimension moved past the threshold.
	DriftSignatureDrift DriftKind = "signature_drift"
	// DriftRatingStyleShift means the rating distribution changed.
	DriftRatingStyleShift DriftKind = "rating_style_shift"
)

// DriftSeverity ranks how notable an alert is.
type DriftSeverity string

const (
	SeverityLow    DriftSeverity = "low"
	SeverityMedium DriftSeverity = "medium"
	SeverityHigh   DriftSeverity = "high"
)

// Rank orders severities; higher is more severe.
func (s DriftSeverity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DriftAlert is a detected change between the current and previous run. Alerts are
// generated and never mutated.
type DriftAlert struct {
	DetectedAt  time.Time     `json:"detected_at"`
	Kind        DriftKind     `json:"kind"`
	Severity    DriftSeverity `json:"severity"`
	Subject     string        `json:"subject,omitempty"`
	Description string        `json:"description"`
	Magnitude   float64       `json:"magnitude"`
}

// DriftState is the persisted drift blob. The Previous* fields are the baseline the
// next run compares against.
type DriftState struct {
	PreviousSignature   *ListeningSignature `json:"previous_signature,omitempty"`
	PreviousRatingStyle *RatingStyle        `json:"previous_rating_style,omitempty"`
	Alerts              []DriftAlert        `json:"alerts"`
	PreviousPatterns    []*Pattern          `json:"previous_patterns"`
	PreviousEventCount  int                 `json:"previous_event_count"`
	// ReportedContradictions holds the subjects of contradictions already raised
	// and still standing, so each one is reported once per co-confirmation.
	ReportedContradictions []string `json:"reported_contradictions,omitempty"`
}
