// Package pattern learns recurring listening behaviors from a rating history and
// tracks each one through the emerging, confirmed and faded lifecycle.
package pattern

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/pkg/models"
)

// Config contains configuration for the pattern learning engine.
type Config struct {
	// EmergenceThreshold is the confidence at which a pattern is created (0.0-1.0).
	EmergenceThreshold float64 `json:"emergence_threshold" validate:"gt=0,lte=1,gtfield=FadeThreshold"`
	// ConfirmationThreshold is the confidence required for promotion to confirmed.
	ConfirmationThreshold float64 `json:"confirmation_threshold" validate:"gt=0,lte=1,gtefield=EmergenceThreshold"`
	// FadeThreshold is the confidence below which an active pattern fades.
	FadeThreshold float64 `json:"fade_threshold" validate:"gte=0,lt=1"`
	// MinConfirmationDays is the observation span required for confirmation.
	MinConfirmationDays int `json:"min_confirmation_days" validate:"min=0"`
	// MinConfirmationSupport is the number of supporting events required for confirmation.
	MinConfirmationSupport int `json:"min_confirmation_support" validate:"min=1"`
	// FadeAfterEvents fades a pattern whose latest support is this many events old.
	FadeAfterEvents int `json:"fade_after_events" validate:"min=1"`
	// DropAfterEvents and DropAfterDays together drop a faded pattern for good.
	DropAfterEvents int `json:"drop_after_events" validate:"gtefield=FadeAfterEvents"`
	DropAfterDays   int `json:"drop_after_days" validate:"min=0"`
	// MinEvents is the history length below which no detector triggers.
	MinEvents int `json:"min_events" validate:"min=2"`

	// Detector tuning. Each *Share is the share of supporting ratings at which a
	// detector reaches full confidence.
	PopulationMeanRating float64 `json:"population_mean_rating" validate:"gte=0,lte=10"`
	PopulationStdDev     float64 `json:"population_std_dev" validate:"gt=0"`
	CriticalShare        float64 `json:"critical_share" validate:"gt=0,lte=1"`
	GenerousShare        float64 `json:"generous_share" validate:"gt=0,lte=1"`
	ReactorShare         float64 `json:"reactor_share" validate:"gt=0,lte=1"`
	MoodShare            float64 `json:"mood_share" validate:"gt=0,lte=1"`
	BurstShare           float64 `json:"burst_share" validate:"gt=0,lte=1"`
	// LoyalistBaseShare is the home-genre share at which loyalty starts counting;
	// confidence is full at LoyalistBaseShare+LoyalistRange.
	LoyalistBaseShare  float64 `json:"loyalist_base_share" validate:"gte=0,lt=1"`
	LoyalistRange      float64 `json:"loyalist_range" validate:"gt=0,lte=1"`
	HopperGenreBreadth int     `json:"hopper_genre_breadth" validate:"min=1"`
	SprintSize         int     `json:"sprint_size" validate:"min=2"`
	SprintWindowDays   int     `json:"sprint_window_days" validate:"min=1"`
	BingeSize          int     `json:"binge_size" validate:"min=2"`
	BingeWindowHours   int     `json:"binge_window_hours" validate:"min=1"`
}

// DefaultConfig returns the default pattern engine configuration.
func DefaultConfig() Config {
	return Config{
		EmergenceThreshold:     0.35,
		ConfirmationThreshold:  0.6,
		FadeThreshold:          0.2,
		MinConfirmationDays:    30,
		MinConfirmationSupport: 10,
		FadeAfterEvents:        30,
		DropAfterEvents:        200,
		DropAfterDays:          365,
		MinEvents:              6,

		PopulationMeanRating: 6.8,
		PopulationStdDev:     1.8,
		CriticalShare:        0.4,
		GenerousShare:        0.6,
		ReactorShare:         0.5,
		MoodShare:            0.5,
		BurstShare:           0.5,
		LoyalistBaseShare:    0.4,
		LoyalistRange:        0.4,
		HopperGenreBreadth:   8,
		SprintSize:           4,
		SprintWindowDays:     14,
		BingeSize:            5,
		BingeWindowHours:     24,
	}
}

func (c Config) minConfirmationSpan() time.Duration {
	return time.Duration(c.MinConfirmationDays) * 24 * time.Hour
}

func (c Config) dropAfterAge() time.Duration {
	return time.Duration(c.DropAfterDays) * 24 * time.Hour
}

// Engine holds the known patterns for one user, keyed by detector id.
// It is not safe for concurrent use; one engine serves one recompute.
type Engine struct {
	patterns  map[string]*models.Pattern
	logger    zerolog.Logger
	detectors []Detector
	config    Config
}

// NewEngine creates a pattern engine with no prior state.
func NewEngine(config Config, logger zerolog.Logger) *Engine {
	return &Engine{
		patterns:  make(map[string]*models.Pattern),
		logger:    logger.With().Str("component", "pattern").Logger(),
		detectors: Catalog(),
		config:    config,
	}
}

// LoadFromJSON restores previously serialized patterns. Empty input is a cold start.
// Unparseable or invalid state is logged and discarded; the engine then continues
// from a cold start and the returned error describes what was wrong.
func (e *Engine) LoadFromJSON(data []byte) error {
	e.patterns = make(map[string]*models.Pattern)
	if len(data) == 0 {
		return nil
	}

	var stored []*models.Pattern
	if err := json.Unmarshal(data, &stored); err != nil {
		e.logger.Warn().Err(err).Msg("Corrupt pattern state, starting cold")
		return fmt.Errorf("parse pattern state: %w", err)
	}

	known := make(map[string]bool, len(e.detectors))
	for _, d := range e.detectors {
		known[d.ID] = true
	}

	restored := make(map[string]*models.Pattern, len(stored))
	for _, p := range stored {
		if err := validatePattern(p); err != nil {
			e.logger.Warn().Err(err).Msg("Corrupt pattern state, starting cold")
			return fmt.Errorf("validate pattern state: %w", err)
		}
		if !known[p.ID] {
			e.logger.Debug().Str("pattern", p.ID).Msg("Skipping pattern from retired detector")
			continue
		}
		restored[p.ID] = p
	}

	e.patterns = restored
	e.logger.Debug().Int("patterns", len(restored)).Msg("Pattern state loaded")
	return nil
}

func validatePattern(p *models.Pattern) error {
	switch {
	case p == nil:
		return fmt.Errorf("null pattern")
	case p.ID == "":
		return fmt.Errorf("pattern without id")
	case !p.Status.Valid():
		return fmt.Errorf("pattern %s has invalid status %q", p.ID, p.Status)
	case p.Confidence < 0 || p.Confidence > 1:
		return fmt.Errorf("pattern %s has confidence %f outside [0,1]", p.ID, p.Confidence)
	}
	return nil
}

// ToJSON serializes the known patterns ordered by id.
func (e *Engine) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e.sorted())
	if err != nil {
		return nil, fmt.Errorf("marshal pattern state: %w", err)
	}
	return data, nil
}

// DetectPatternsFromReviews re-evaluates every detector against the full history
// (ordered by CreatedAt) and merges the results into the known patterns.
// It returns every tracked pattern, faded ones included, ordered by id.
func (e *Engine) DetectPatternsFromReviews(events []models.RatingEvent) []*models.Pattern {
	var newest time.Time
	if len(events) > 0 {
		newest = events[len(events)-1].CreatedAt
	}

	for i := range e.detectors {
		d := &e.detectors[i]
		eval := d.Evaluate(events, e.config)
		prior := e.patterns[d.ID]

		current := models.PatternStatusNone
		firstSeen, lastSeen := eval.FirstSupport, eval.LastSupport
		if prior != nil {
			current = prior.Status
			if !prior.FirstSeenAt.IsZero() && (firstSeen.IsZero() || prior.FirstSeenAt.Before(firstSeen)) {
				firstSeen = prior.FirstSeenAt
			}
			if lastSeen.IsZero() {
				lastSeen = prior.LastSeenAt
			}
		}

		obs := Observation{
			Confidence:      eval.Confidence,
			Support:         eval.Support,
			EventsSinceSeen: eval.EventsSinceSeen,
		}
		if !firstSeen.IsZero() && !lastSeen.IsZero() {
			obs.Span = lastSeen.Sub(firstSeen)
		}
		if !lastSeen.IsZero() && !newest.IsZero() {
			obs.SinceLastSeen = newest.Sub(lastSeen)
		}

		next := Transition(current, obs, e.config)
		if next == models.PatternStatusNone {
			if prior != nil {
				e.logger.Debug().Str("pattern", d.ID).Msg("Pattern dropped")
			}
			delete(e.patterns, d.ID)
			continue
		}
		if next != current {
			e.logger.Debug().
				Str("pattern", d.ID).
				Str("from", string(current)).
				Str("to", string(next)).
				Float64("confidence", eval.Confidence).
				Msg("Pattern transitioned")
		}

		e.patterns[d.ID] = &models.Pattern{
			ID:              d.ID,
			Name:            d.Name,
			Description:     d.Description,
			Category:        d.Category,
			Status:          next,
			Confidence:      eval.Confidence,
			FirstSeenAt:     firstSeen,
			LastSeenAt:      lastSeen,
			SupportCount:    eval.Support,
			EventsSinceSeen: eval.EventsSinceSeen,
			Evidence:        eval.Evidence,
		}
	}

	return e.Patterns()
}

// Patterns returns copies of all tracked patterns ordered by id.
func (e *Engine) Patterns() []*models.Pattern {
	sorted := e.sorted()
	out := make([]*models.Pattern, len(sorted))
	for i, p := range sorted {
		out[i] = p.Clone()
	}
	return out
}

// GetPatternsSortedByImportance returns all tracked patterns, most important first.
func (e *Engine) GetPatternsSortedByImportance() []*models.Pattern {
	return SortByImportance(e.Patterns())
}

// SortByImportance orders patterns by importance, ties broken by id.
func SortByImportance(patterns []*models.Pattern) []*models.Pattern {
	sort.SliceStable(patterns, func(i, j int) bool {
		ii, ij := patterns[i].Importance(), patterns[j].Importance()
		if ii != ij {
			return ii > ij
		}
		return patterns[i].ID < patterns[j].ID
	})
	return patterns
}

// GetPatternsByStatus returns the tracked patterns with the given status, ordered by id.
func (e *Engine) GetPatternsByStatus(status models.PatternStatus) []*models.Pattern {
	return FilterByStatus(e.Patterns(), status)
}

// FilterByStatus keeps the patterns with the given status.
func FilterByStatus(patterns []*models.Pattern, status models.PatternStatus) []*models.Pattern {
	var out []*models.Pattern
	for _, p := range patterns {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// ActivePatterns returns emerging and confirmed patterns, most important first.
func (e *Engine) ActivePatterns() []*models.Pattern {
	var active []*models.Pattern
	for _, p := range e.Patterns() {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	return SortByImportance(active)
}

func (e *Engine) sorted() []*models.Pattern {
	out := make([]*models.Pattern, 0, len(e.patterns))
	for _, p := range e.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
