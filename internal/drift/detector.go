// Package drift compares a freshly computed taste profile with the baseline stored
// by the previous run and raises alerts for meaningful behavioral changes.
package drift

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/internal/pattern"
	"github.com/thebtf/tasteid/pkg/models"
)

// Config contains drift thresholds.
type Config struct {
	// SignatureDelta is the per-dimension change of the normalized signature that
	// raises an alert (default 0.15).
	SignatureDelta float64 `json:"signature_delta" validate:"gt=0,lte=1"`
	// RatingDelta is the change of average or stdDev that raises an alert (default 0.75).
	RatingDelta float64 `json:"rating_delta" validate:"gt=0,lte=10"`
	// EscalationFactor multiplies a delta to reach the next severity (default 2).
	EscalationFactor float64 `json:"escalation_factor" validate:"gt=1"`
	// MinCosineSimilarity marks signature drift high when the whole signature turned
	// further than this (default 0.8).
	MinCosineSimilarity float64 `json:"min_cosine_similarity" validate:"gte=0,lte=1"`
	// HighConfidence marks a vanished pattern high when it was at least this
	// confident (default 0.8).
	HighConfidence float64 `json:"high_confidence" validate:"gte=0,lte=1"`
	// MinEventsForDisappearance is how many events must pass without support before a
	// vanished pattern is reported (default 20).
	MinEventsForDisappearance int `json:"min_events_for_disappearance" validate:"min=1"`
	// ContradictionSeverity is the severity of contradiction alerts (default high).
	ContradictionSeverity models.DriftSeverity `json:"contradiction_severity" validate:"oneof=low medium high"`
	// SignificantSeverity is the lowest severity GetSignificantDrifts returns (default medium).
	SignificantSeverity models.DriftSeverity `json:"significant_severity" validate:"oneof=low medium high"`
	// MaxSignificant bounds GetSignificantDrifts (default 5).
	MaxSignificant int `json:"max_significant" validate:"min=1"`
}

// DefaultConfig returns the default drift configuration.
func DefaultConfig() Config {
	return Config{
		SignatureDelta:            0.15,
		RatingDelta:               0.75,
		EscalationFactor:          2,
		MinCosineSimilarity:       0.8,
		HighConfidence:            0.8,
		MinEventsForDisappearance: 20,
		ContradictionSeverity:     models.SeverityHigh,
		SignificantSeverity:       models.SeverityMedium,
		MaxSignificant:            5,
	}
}

// Detector derives the complete alert set of one run from the current profile and
// the previous baseline. Each Detect call also records the current value as the
// baseline ToJSON persists for the next run.
type Detector struct {
	previous models.DriftState
	next     models.DriftState
	now      func() time.Time
	logger   zerolog.Logger
	alerts   []models.DriftAlert
	config   Config
	running  bool
}

// NewDetector creates a detector with no baseline.
func NewDetector(config Config, logger zerolog.Logger) *Detector {
	return &Detector{
		now:    time.Now,
		logger: logger.With().Str("component", "drift").Logger(),
		config: config,
	}
}

// SetClock replaces the clock used to stamp alerts.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// LoadFromJSON restores the previous baseline and its alerts. Corrupt state is
// logged and discarded, leaving the detector without a baseline.
func (d *Detector) LoadFromJSON(data []byte) error {
	d.previous, d.next = models.DriftState{}, models.DriftState{}
	d.alerts, d.running = nil, false
	if len(data) == 0 {
		return nil
	}

	var state models.DriftState
	err := json.Unmarshal(data, &state)
	if err == nil {
		err = validateState(state)
	}
	if err != nil {
		d.logger.Warn().Err(err).Msg("Corrupt drift state, starting without baseline")
		return fmt.Errorf("load drift state: %w", err)
	}

	d.previous = state
	d.next = state
	d.alerts = state.Alerts
	return nil
}

func validateState(state models.DriftState) error {
	if state.PreviousEventCount < 0 {
		return errors.New("negative previous event count")
	}
	if sig := state.PreviousSignature; sig != nil {
		for _, v := range sig.Vector() {
			if v < 0 || math.IsNaN(v) {
				return errors.New("invalid previous signature")
			}
		}
	}
	for _, p := range state.PreviousPatterns {
		if p == nil || p.ID == "" || !p.Status.Valid() {
			return errors.New("invalid previous pattern")
		}
	}
	for _, a := range state.Alerts {
		if a.Kind == "" || a.Severity.Rank() == 0 {
			return fmt.Errorf("invalid alert %q", a.Kind)
		}
	}
	return nil
}

// hasBaseline reports whether a previous run left something to compare against.
func (d *Detector) hasBaseline() bool {
	return d.previous.PreviousSignature != nil || d.previous.PreviousRatingStyle != nil ||
		len(d.previous.PreviousPatterns) > 0 || d.previous.PreviousEventCount > 0
}

// begin starts a new alert list on the first Detect call of a run.
func (d *Detector) begin() {
	if !d.running {
		d.running = true
		d.alerts = nil
	}
}

func (d *Detector) raise(alert models.DriftAlert) models.DriftAlert {
	alert.DetectedAt = d.now()
	d.alerts = append(d.alerts, alert)
	d.logger.Debug().
		Str("kind", string(alert.Kind)).
		Str("subject", alert.Subject).
		Str("severity", string(alert.Severity)).
		Float64("magnitude", alert.Magnitude).
		Msg("Drift detected")
	return alert
}

// DetectPatternDisappearance reports previously confirmed patterns that are now
// missing or faded, once enough events have passed without supporting them.
func (d *Detector) DetectPatternDisappearance(patterns []*models.Pattern, totalEventCount int) []models.DriftAlert {
	d.begin()
	d.next.PreviousPatterns = baselinePatterns(patterns)
	d.next.PreviousEventCount = totalEventCount
	if !d.hasBaseline() {
		return nil
	}

	current := make(map[string]*models.Pattern, len(patterns))
	for _, p := range patterns {
		current[p.ID] = p
	}

	var raised []models.DriftAlert
	for _, prev := range d.previous.PreviousPatterns {
		if prev.Status != models.PatternStatusConfirmed {
			continue
		}
		now := current[prev.ID]
		if now != nil && now.Status != models.PatternStatusFaded {
			continue
		}

		sinceSeen := prev.EventsSinceSeen + max(totalEventCount-d.previous.PreviousEventCount, 0)
		if now != nil {
			sinceSeen = now.EventsSinceSeen
		}
		if sinceSeen < d.config.MinEventsForDisappearance {
			continue
		}

		severity := models.SeverityMedium
		if prev.Confidence >= d.config.HighConfidence {
			severity = models.SeverityHigh
		}
		raised = append(raised, d.raise(models.DriftAlert{
			Kind:        models.DriftPatternDisappeared,
			Severity:    severity,
			Subject:     prev.ID,
			Description: fmt.Sprintf("%s has not shown up in your last %d ratings", prev.Name, sinceSeen),
			Magnitude:   prev.Confidence,
		}))
	}
	return raised
}

// DetectContradictions reports mutually exclusive patterns that are confirmed
// together and have not been reported yet. A contradiction is a property of the
// current pattern set, so it is raised on the first run as well. It is raised
// again only after the pair stopped being co-confirmed in between.
func (d *Detector) DetectContradictions(patterns []*models.Pattern) []models.DriftAlert {
	d.begin()

	confirmedNow := confirmedSet(patterns)
	reported := make(map[string]bool, len(d.previous.ReportedContradictions))
	for _, subject := range d.previous.ReportedContradictions {
		reported[subject] = true
	}

	var raised []models.DriftAlert
	var standing []string
	for _, pair := range pattern.MutuallyExclusive {
		a, b := pair[0], pair[1]
		if confirmedNow[a] == nil || confirmedNow[b] == nil {
			continue
		}
		subject := a + "+" + b
		standing = append(standing, subject)
		if reported[subject] {
			continue
		}
		raised = append(raised, d.raise(models.DriftAlert{
			Kind:     models.DriftContradiction,
			Severity: d.config.ContradictionSeverity,
			Subject:  subject,
			Description: fmt.Sprintf("%s and %s are both confirmed but describe opposite habits",
				confirmedNow[a].Name, confirmedNow[b].Name),
			Magnitude: math.Min(confirmedNow[a].Confidence, confirmedNow[b].Confidence),
		}))
	}
	d.next.ReportedContradictions = standing
	return raised
}

// DetectSignatureDrift reports every dimension of the normalized signature that moved
// by at least SignatureDelta since the previous run.
func (d *Detector) DetectSignatureDrift(signature models.ListeningSignature) []models.DriftAlert {
	d.begin()
	current := signature.Normalized()
	d.next.PreviousSignature = &current

	prevSig := d.previous.PreviousSignature
	if prevSig == nil {
		return nil
	}
	previous := prevSig.Normalized()
	similarity := previous.CosineSimilarity(current)

	var raised []models.DriftAlert
	for _, dim := range models.SignatureDimensions {
		before, after := previous.Get(dim), current.Get(dim)
		delta := after - before
		if math.Abs(delta) < d.config.SignatureDelta {
			continue
		}

		severity := models.SeverityMedium
		if math.Abs(delta) >= d.config.EscalationFactor*d.config.SignatureDelta || similarity < d.config.MinCosineSimilarity {
			severity = models.SeverityHigh
		}
		direction := "rose"
		if delta < 0 {
			direction = "fell"
		}
		raised = append(raised, d.raise(models.DriftAlert{
			Kind:        models.DriftSignatureDrift,
			Severity:    severity,
			Subject:     string(dim),
			Description: fmt.Sprintf("%s %s from %.2f to %.2f", dim, direction, before, after),
			Magnitude:   math.Abs(delta),
		}))
	}
	return raised
}

// DetectRatingStyleShift reports a change of skew category and average or stdDev
// moves of at least RatingDelta since the previous run.
func (d *Detector) DetectRatingStyleShift(style models.RatingStyle) []models.DriftAlert {
	d.begin()
	current := style
	d.next.PreviousRatingStyle = &current

	prev := d.previous.PreviousRatingStyle
	if prev == nil {
		return nil
	}

	var raised []models.DriftAlert
	if prev.Skew != style.Skew {
		raised = append(raised, d.raise(models.DriftAlert{
			Kind:        models.DriftRatingStyleShift,
			Severity:    models.SeverityMedium,
			Subject:     "skew",
			Description: fmt.Sprintf("Rating style moved from %s to %s", prev.Skew, style.Skew),
			Magnitude:   math.Abs(style.Average - prev.Average),
		}))
	}

	if delta := style.Average - prev.Average; math.Abs(delta) >= d.config.RatingDelta {
		severity := models.SeverityMedium
		if math.Abs(delta) >= d.config.EscalationFactor*d.config.RatingDelta {
			severity = models.SeverityHigh
		}
		raised = append(raised, d.raise(models.DriftAlert{
			Kind:        models.DriftRatingStyleShift,
			Severity:    severity,
			Subject:     "average",
			Description: fmt.Sprintf("Average rating moved from %.2f to %.2f", prev.Average, style.Average),
			Magnitude:   math.Abs(delta),
		}))
	}

	if delta := style.StdDev - prev.StdDev; math.Abs(delta) >= d.config.RatingDelta {
		severity := models.SeverityLow
		if math.Abs(delta) >= d.config.EscalationFactor*d.config.RatingDelta {
			severity = models.SeverityMedium
		}
		raised = append(raised, d.raise(models.DriftAlert{
			Kind:        models.DriftRatingStyleShift,
			Severity:    severity,
			Subject:     "std_dev",
			Description: fmt.Sprintf("Rating spread moved from %.2f to %.2f", prev.StdDev, style.StdDev),
			Magnitude:   math.Abs(delta),
		}))
	}
	return raised
}

// Alerts returns the complete alert list of the current run.
func (d *Detector) Alerts() []models.DriftAlert {
	return append([]models.DriftAlert(nil), d.alerts...)
}

// GetSignificantDrifts returns the most severe alerts at or above SignificantSeverity,
// at most MaxSignificant of them.
func (d *Detector) GetSignificantDrifts() []models.DriftAlert {
	return Significant(d.alerts, d.config.SignificantSeverity, d.config.MaxSignificant)
}

// Significant filters alerts by minimum severity and orders them by severity and
// magnitude.
func Significant(alerts []models.DriftAlert, minSeverity models.DriftSeverity, limit int) []models.DriftAlert {
	var out []models.DriftAlert
	for _, a := range alerts {
		if a.Severity.Rank() >= minSeverity.Rank() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].Magnitude > out[j].Magnitude
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ToJSON persists the current run's alerts and the values seen by this run's
// Detect calls as the baseline for the next run.
func (d *Detector) ToJSON() ([]byte, error) {
	state := d.next
	state.Alerts = d.alerts
	if state.Alerts == nil {
		state.Alerts = []models.DriftAlert{}
	}
	if state.PreviousPatterns == nil {
		state.PreviousPatterns = []*models.Pattern{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal drift state: %w", err)
	}
	return data, nil
}

func baselinePatterns(patterns []*models.Pattern) []*models.Pattern {
	out := make([]*models.Pattern, 0, len(patterns))
	for _, p := range patterns {
		c := p.Clone()
		c.Evidence = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func confirmedSet(patterns []*models.Pattern) map[string]*models.Pattern {
	set := make(map[string]*models.Pattern)
	for _, p := range patterns {
		if p.Status == models.PatternStatusConfirmed {
			set[p.ID] = p
		}
	}
	return set
}
