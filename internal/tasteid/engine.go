package tasteid

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/internal/consolidation"
	"github.com/thebtf/tasteid/internal/drift"
	"github.com/thebtf/tasteid/internal/pattern"
	"github.com/thebtf/tasteid/internal/signature"
	"github.com/thebtf/tasteid/pkg/models"
)

// MinRecomputeEvents is the floor under Config.MinEvents: a recompute never
// accepts fewer ratings.
const MinRecomputeEvents = 3

// Result is the complete output of one recompute run.
type Result struct {
	Signature         *signature.Result
	Patterns          []*models.Pattern
	Episodes          []models.Episode
	Tastes            []models.ConsolidatedTaste
	Alerts            []models.DriftAlert
	SignificantDrifts []models.DriftAlert
	// ColdStarts lists the components whose prior state was discarded as corrupt.
	ColdStarts   []string
	Snapshot     models.Snapshot
	EpisodeStats models.EpisodeStats
	EventCount   int
}

// Engine runs the four components over a full rating history and a prior
// snapshot. Compute is a pure function of its inputs plus the clock: every call
// builds fresh component instances, so an Engine is safe for concurrent use.
type Engine struct {
	config  atomic.Pointer[Config]
	vocab   *signature.Vocabulary
	now     func() time.Time
	metrics *metrics
	logger  zerolog.Logger
}

// NewEngine creates an engine. A nil vocabulary selects the embedded default.
func NewEngine(config Config, vocab *signature.Vocabulary, logger zerolog.Logger) *Engine {
	if vocab == nil {
		vocab = signature.DefaultVocabulary()
	}
	e := &Engine{
		vocab:   vocab,
		now:     time.Now,
		metrics: newMetrics(),
		logger:  logger.With().Str("component", "tasteid").Logger(),
	}
	e.config.Store(&config)
	return e
}

// SetClock replaces the clock used to stamp drift alerts and profiles.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the configuration used by the next Compute call.
func (e *Engine) Config() Config {
	return *e.config.Load()
}

// UpdateConfig swaps the configuration for subsequent runs. Runs in flight keep
// the configuration they started with.
func (e *Engine) UpdateConfig(config Config) {
	e.config.Store(&config)
	e.logger.Info().Msg("Engine configuration updated")
}

// Compute runs signature, pattern, consolidation and drift over events, resuming
// from prior (nil for a first run). Corrupt prior blobs are discarded per
// component. Any internal fault fails the whole run with ErrComputation and no
// partial result.
func (e *Engine) Compute(events []models.RatingEvent, prior *models.Snapshot) (result *Result, err error) {
	config := e.Config()
	events = models.DedupeEvents(models.SortEvents(events))
	if need := max(config.MinEvents, MinRecomputeEvents); len(events) < need {
		return nil, insufficientData(len(events), need)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("Taste computation panicked")
			result, err = nil, fmt.Errorf("%w: %v", ErrComputation, r)
		}
	}()

	if prior == nil {
		prior = &models.Snapshot{}
	}
	ctx := context.Background()
	result = &Result{EventCount: len(events)}

	computer := signature.NewComputer(config.Signature, e.vocab, e.logger)
	patterns := pattern.NewEngine(config.Pattern, e.logger)
	consolidator := consolidation.NewEngine(config.Consolidation, e.logger)
	detector := drift.NewDetector(config.Drift, e.logger)
	detector.SetClock(e.now)

	if err := patterns.LoadFromJSON(prior.PatternState); err != nil {
		result.ColdStarts = append(result.ColdStarts, "pattern")
	}
	if err := consolidator.LoadFromJSON(prior.CognitiveGraph, prior.EpisodeHistory); err != nil {
		result.ColdStarts = append(result.ColdStarts, "consolidation")
	}
	if err := detector.LoadFromJSON(prior.DriftState); err != nil {
		result.ColdStarts = append(result.ColdStarts, "drift")
	}
	for _, component := range result.ColdStarts {
		e.metrics.recordColdStart(ctx, component)
	}

	result.Signature = computer.Compute(events)
	result.Patterns = patterns.DetectPatternsFromReviews(events)

	if err := consolidator.Consolidate(events, result.Patterns); err != nil {
		return nil, fmt.Errorf("%w: consolidate: %v", ErrComputation, err)
	}
	result.Episodes = consolidator.Episodes()
	result.Tastes = consolidator.Tastes()
	result.EpisodeStats = consolidator.GetEpisodeStats()

	detector.DetectPatternDisappearance(result.Patterns, len(events))
	detector.DetectContradictions(result.Patterns)
	detector.DetectSignatureDrift(result.Signature.Signature)
	detector.DetectRatingStyleShift(result.Signature.RatingStyle)
	result.Alerts = detector.Alerts()
	result.SignificantDrifts = detector.GetSignificantDrifts()

	if result.Snapshot.PatternState, err = patterns.ToJSON(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	if result.Snapshot.CognitiveGraph, result.Snapshot.EpisodeHistory, err = consolidator.ToJSON(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	if result.Snapshot.DriftState, err = detector.ToJSON(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	e.logger.Info().
		Int("events", len(events)).
		Int("patterns", len(result.Patterns)).
		Int("episodes", len(result.Episodes)).
		Int("alerts", len(result.Alerts)).
		Strs("cold_starts", result.ColdStarts).
		Msg("Taste profile computed")
	return result, nil
}

// Preview computes only the signature, for histories too short for a recompute.
func (e *Engine) Preview(events []models.RatingEvent) (*signature.Result, error) {
	config := e.Config()
	if len(events) < max(config.PreviewMinEvents, 1) {
		return nil, insufficientData(len(events), max(config.PreviewMinEvents, 1))
	}
	computer := signature.NewComputer(config.Signature, e.vocab, e.logger)
	return computer.Compute(models.DedupeEvents(models.SortEvents(events))), nil
}

// Profile builds the profile row for userID from a run result.
func (r *Result) Profile(userID, runID string, computedAt time.Time) *models.Profile {
	return &models.Profile{
		UserID:       userID,
		RunID:        runID,
		ComputedAt:   computedAt,
		Archetype:    r.Signature.Archetype,
		Stats:        r.Signature.Stats,
		RatingStyle:  r.Signature.RatingStyle,
		Signature:    r.Signature.Signature,
		RawSignature: r.Signature.RawSignature,
		Snapshot:     r.Snapshot,
	}
}
