// Package consolidation segments a rating history into episodes, tracks long-run
// taste trends and deposits both, together with confirmed patterns, into the
// cognitive graph.
package consolidation

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/internal/graph"
	"github.com/thebtf/tasteid/pkg/models"
)

// Config contains parameters for episode segmentation and consolidation.
type Config struct {
	// InactivityGapHours starts a new episode after this much silence (default 48).
	InactivityGapHours int `json:"inactivity_gap_hours" validate:"min=1"`
	// DiscontinuityWindow is the number of recent genre-tagged ratings a new rating
	// must share a genre with to stay in the episode (default 5).
	DiscontinuityWindow int `json:"discontinuity_window" validate:"min=1"`
	// DominantN is the number of dominant genres/artists kept per episode (default 3).
	DominantN int `json:"dominant_n" validate:"min=1"`
	// TrendWindow is the number of episodes compared on each side of a trend (default 3).
	TrendWindow int `json:"trend_window" validate:"min=1"`
	// TrendThreshold is the relative share change that counts as a trend (default 0.25).
	TrendThreshold float64 `json:"trend_threshold" validate:"gt=0"`
	// MinTasteOccurrences is the rating count for a cluster to be tracked (default 3).
	MinTasteOccurrences int `json:"min_taste_occurrences" validate:"min=1"`
	// MinTasteEpisodes is the number of episodes a cluster must recur in to become
	// a graph node (default 2).
	MinTasteEpisodes int `json:"min_taste_episodes" validate:"min=1"`
	// MinEdgeStrength skips associations weaker than this (default 0.05).
	MinEdgeStrength float64 `json:"min_edge_strength" validate:"gte=0,lt=1"`
	// Graph configures edge learning.
	Graph graph.Config `json:"graph"`
}

// DefaultConfig returns the default consolidation configuration.
func DefaultConfig() Config {
	return Config{
		InactivityGapHours:  48,
		DiscontinuityWindow: 5,
		DominantN:           3,
		TrendWindow:         3,
		TrendThreshold:      0.25,
		MinTasteOccurrences: 3,
		MinTasteEpisodes:    2,
		MinEdgeStrength:     0.05,
		Graph:               graph.DefaultConfig(),
	}
}

// Engine owns the cognitive graph and the episode history of one user.
// It is not safe for concurrent use.
type Engine struct {
	graph       *graph.CognitiveGraph
	eventTastes map[string][]string
	episodeOf   map[string]string
	logger      zerolog.Logger
	episodes    []models.Episode
	tastes      []models.ConsolidatedTaste
	config      Config
}

// NewEngine creates a consolidation engine with an empty graph.
func NewEngine(config Config, logger zerolog.Logger) *Engine {
	return &Engine{
		graph:  graph.NewCognitiveGraph(config.Graph, logger),
		logger: logger.With().Str("component", "consolidation").Logger(),
		config: config,
	}
}

// Graph exposes the cognitive graph.
func (e *Engine) Graph() *graph.CognitiveGraph {
	return e.graph
}

// ExtractEpisodes segments the history and keeps the result as the current episodes.
func (e *Engine) ExtractEpisodes(events []models.RatingEvent) []models.Episode {
	e.episodes = ExtractEpisodes(events, e.config)

	e.eventTastes = make(map[string][]string, len(events))
	for i := range events {
		e.eventTastes[events[i].ID] = tasteKeys(&events[i])
	}
	e.episodeOf = make(map[string]string, len(events))
	for _, ep := range e.episodes {
		for _, id := range ep.MemberEventIDs {
			e.episodeOf[id] = ep.ID
		}
	}
	return e.episodes
}

// ComputeConsolidatedTastes computes taste trends over the current episodes.
func (e *Engine) ComputeConsolidatedTastes(events []models.RatingEvent) []models.ConsolidatedTaste {
	if e.episodeOf == nil {
		e.ExtractEpisodes(events)
	}
	e.tastes = ComputeConsolidatedTastes(events, e.episodes, e.config)
	return e.tastes
}

// Consolidate runs one full learning pass: episodes, tastes, the episode and taste
// part of the graph, and the pattern edges.
func (e *Engine) Consolidate(events []models.RatingEvent, patterns []*models.Pattern) error {
	e.ExtractEpisodes(events)
	e.ComputeConsolidatedTastes(events)

	e.graph.BeginPass(len(events))
	if err := e.depositEpisodes(); err != nil {
		e.graph.EndPass()
		return err
	}
	if err := e.LearnEdgeWeights(patterns); err != nil {
		e.graph.EndPass()
		return err
	}
	pruned := e.graph.EndPass()

	stats := e.graph.Stats()
	e.logger.Debug().
		Int("episodes", len(e.episodes)).
		Int("tastes", len(e.tastes)).
		Int("nodes", stats.NodeCount).
		Int("edges", stats.EdgeCount).
		Int("pruned", pruned).
		Msg("Consolidation pass complete")
	return nil
}

// depositEpisodes adds episode and recurring taste nodes with their features and
// continues edges.
func (e *Engine) depositEpisodes() error {
	recurring := e.recurringTastes()

	for i, ep := range e.episodes {
		epNode := e.graph.UpsertNode(models.NodeTypeEpisode, ep.ID, ep.StartAt.Format("2006-01-02"))

		counts := make(map[string]int)
		for _, id := range ep.MemberEventIDs {
			for _, k := range e.eventTastes[id] {
				counts[k]++
			}
		}
		for key, count := range counts {
			if !recurring[key] {
				continue
			}
			_, name := splitTasteKey(key)
			tasteNode := e.graph.UpsertNode(models.NodeTypeTaste, key, name)
			if err := e.reinforce(epNode, tasteNode, models.RelationFeatures, float64(count)/float64(ep.Size())); err != nil {
				return err
			}
		}

		if i == 0 {
			continue
		}
		prev := e.episodes[i-1]
		prevNode := models.NodeID(models.NodeTypeEpisode, prev.ID)
		if err := e.reinforce(prevNode, epNode, models.RelationContinues, continuation(prev, ep)); err != nil {
			return err
		}
	}
	return nil
}

// recurringTastes returns tracked clusters that appear in at least MinTasteEpisodes episodes.
func (e *Engine) recurringTastes() map[string]bool {
	tracked := make(map[string]bool, len(e.tastes))
	for _, t := range e.tastes {
		tracked[tasteKey(t.Kind, t.Key)] = true
	}

	episodesWith := make(map[string]int)
	for _, ep := range e.episodes {
		seen := make(map[string]bool)
		for _, id := range ep.MemberEventIDs {
			for _, k := range e.eventTastes[id] {
				if tracked[k] && !seen[k] {
					seen[k] = true
					episodesWith[k]++
				}
			}
		}
	}

	recurring := make(map[string]bool)
	for k, n := range episodesWith {
		if n >= e.config.MinTasteEpisodes {
			recurring[k] = true
		}
	}
	return recurring
}

// LearnEdgeWeights adds confirmed patterns as nodes and reinforces exhibits edges to
// the episodes and taste nodes holding their supporting events. The strength is the
// supporting share of the target scaled by the pattern's confidence.
func (e *Engine) LearnEdgeWeights(patterns []*models.Pattern) error {
	for _, p := range patterns {
		if p.Status != models.PatternStatusConfirmed || len(p.Evidence) == 0 {
			continue
		}
		patternNode := e.graph.UpsertNode(models.NodeTypePattern, p.ID, p.Name)

		perEpisode := make(map[string]int)
		perTaste := make(map[string]int)
		for _, id := range p.Evidence {
			if ep, ok := e.episodeOf[id]; ok {
				perEpisode[ep]++
			}
			for _, k := range e.eventTastes[id] {
				perTaste[k]++
			}
		}

		for _, ep := range e.episodes {
			n := perEpisode[ep.ID]
			if n == 0 {
				continue
			}
			target := models.NodeID(models.NodeTypeEpisode, ep.ID)
			if err := e.reinforce(patternNode, target, models.RelationExhibits, exhibitStrength(n, ep.Size(), p.Confidence)); err != nil {
				return err
			}
		}

		for key, n := range perTaste {
			target := models.NodeID(models.NodeTypeTaste, key)
			if _, ok := e.graph.Node(target); !ok {
				continue
			}
			if err := e.reinforce(patternNode, target, models.RelationExhibits, exhibitStrength(n, len(p.Evidence), p.Confidence)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) reinforce(from, to string, relation models.EdgeRelation, strength float64) error {
	if strength < e.config.MinEdgeStrength {
		return nil
	}
	if err := e.graph.Reinforce(from, to, relation, strength); err != nil {
		return fmt.Errorf("consolidate %s edge: %w", relation, err)
	}
	return nil
}

// Episodes returns the current episodes.
func (e *Engine) Episodes() []models.Episode {
	return e.episodes
}

// Tastes returns the current consolidated tastes.
func (e *Engine) Tastes() []models.ConsolidatedTaste {
	return e.tastes
}

// GetEpisodeStats summarizes the current episodes and graph.
func (e *Engine) GetEpisodeStats() models.EpisodeStats {
	stats := models.EpisodeStats{TotalEpisodes: len(e.episodes)}
	totalHours := 0.0
	for _, ep := range e.episodes {
		stats.TotalEvents += ep.Size()
		stats.LongestEpisodeEvents = max(stats.LongestEpisodeEvents, ep.Size())
		totalHours += ep.Duration().Hours()
	}
	if len(e.episodes) > 0 {
		stats.AvgEventsPerEpisode = float64(stats.TotalEvents) / float64(len(e.episodes))
		stats.AvgDurationHours = totalHours / float64(len(e.episodes))
	}
	g := e.graph.Stats()
	stats.NodeCount = g.NodeCount
	stats.EdgeCount = g.EdgeCount
	return stats
}

// LoadFromJSON restores the cognitive graph and the episode history. Each blob is
// independent: a corrupt one is logged and replaced by an empty state without
// affecting the other. The returned error joins what was discarded.
func (e *Engine) LoadFromJSON(graphData, historyData []byte) error {
	e.graph = graph.NewCognitiveGraph(e.config.Graph, e.logger)
	e.episodes, e.tastes = nil, nil
	e.episodeOf, e.eventTastes = nil, nil

	var errs []error
	if len(graphData) > 0 {
		var state models.GraphState
		err := json.Unmarshal(graphData, &state)
		if err == nil {
			err = e.graph.Load(state)
		}
		if err != nil {
			e.logger.Warn().Err(err).Msg("Corrupt cognitive graph, starting cold")
			e.graph = graph.NewCognitiveGraph(e.config.Graph, e.logger)
			errs = append(errs, fmt.Errorf("load cognitive graph: %w", err))
		}
	}

	if len(historyData) > 0 {
		var history models.EpisodeHistory
		err := json.Unmarshal(historyData, &history)
		if err == nil {
			err = validateHistory(history)
		}
		if err != nil {
			e.logger.Warn().Err(err).Msg("Corrupt episode history, starting cold")
			errs = append(errs, fmt.Errorf("load episode history: %w", err))
		} else {
			e.episodes, e.tastes = history.Episodes, history.Tastes
		}
	}

	return errors.Join(errs...)
}

func validateHistory(history models.EpisodeHistory) error {
	seen := make(map[string]bool, len(history.Episodes))
	for _, ep := range history.Episodes {
		switch {
		case ep.ID == "" || seen[ep.ID]:
			return fmt.Errorf("episode id %q is empty or duplicated", ep.ID)
		case ep.Size() == 0:
			return fmt.Errorf("episode %s has no members", ep.ID)
		case ep.EndAt.Before(ep.StartAt):
			return fmt.Errorf("episode %s ends before it starts", ep.ID)
		}
		seen[ep.ID] = true
	}
	return nil
}

// ToJSON serializes the cognitive graph and the episode history.
func (e *Engine) ToJSON() (graphData, historyData []byte, err error) {
	graphData, err = json.Marshal(e.graph.State())
	if err != nil {
		return nil, nil, fmt.Errorf("marshal cognitive graph: %w", err)
	}

	history := models.EpisodeHistory{
		Episodes: e.episodes,
		Tastes:   e.tastes,
		Graph:    e.GetEpisodeStats(),
	}
	if history.Episodes == nil {
		history.Episodes = []models.Episode{}
	}
	if history.Tastes == nil {
		history.Tastes = []models.ConsolidatedTaste{}
	}
	historyData, err = json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal episode history: %w", err)
	}
	return graphData, historyData, nil
}
