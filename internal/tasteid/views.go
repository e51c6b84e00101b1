package tasteid

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/internal/consolidation"
	"github.com/thebtf/tasteid/internal/drift"
	"github.com/thebtf/tasteid/internal/graph"
	"github.com/thebtf/tasteid/internal/pattern"
	"github.com/thebtf/tasteid/pkg/models"
)

// EpisodeView is the stored episode history of a profile.
type EpisodeView struct {
	Episodes []models.Episode           `json:"episodes"`
	Tastes   []models.ConsolidatedTaste `json:"tastes"`
	Stats    models.EpisodeStats        `json:"stats"`
	Hubs     []TasteHub                 `json:"hubs"`
}

// TasteHub is a taste node with the strongest associations in the cognitive graph.
type TasteHub struct {
	ID    string           `json:"id"`
	Label string           `json:"label,omitempty"`
	Links []graph.Neighbor `json:"links"`
}

const (
	maxHubs     = 5
	maxHubLinks = 3
)

// DriftView is the alert list of the latest run.
type DriftView struct {
	Alerts      []models.DriftAlert `json:"alerts"`
	Significant []models.DriftAlert `json:"significant"`
}

// Patterns returns the stored patterns of userID ordered by importance. An empty
// status returns every non-faded pattern.
func (s *Service) Patterns(ctx context.Context, userID string, status models.PatternStatus) ([]*models.Pattern, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	engine := pattern.NewEngine(s.engine.Config().Pattern, zerolog.Nop())
	if err := engine.LoadFromJSON(profile.Snapshot.PatternState); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	if status != "" {
		return pattern.SortByImportance(engine.GetPatternsByStatus(status)), nil
	}
	return engine.ActivePatterns(), nil
}

// Episodes returns the stored episode history and consolidated tastes of userID.
func (s *Service) Episodes(ctx context.Context, userID string) (*EpisodeView, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	engine := consolidation.NewEngine(s.engine.Config().Consolidation, zerolog.Nop())
	if err := engine.LoadFromJSON(profile.Snapshot.CognitiveGraph, profile.Snapshot.EpisodeHistory); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	return &EpisodeView{
		Episodes: nonNil(engine.Episodes()),
		Tastes:   nonNil(engine.Tastes()),
		Stats:    engine.GetEpisodeStats(),
		Hubs:     tasteHubs(engine.Graph()),
	}, nil
}

func tasteHubs(g *graph.CognitiveGraph) []TasteHub {
	hubs := []TasteHub{}
	for _, id := range g.FindHubs(models.NodeTypeTaste, maxHubs) {
		hub := TasteHub{ID: id, Links: g.Neighbors(id)}
		if node, ok := g.Node(id); ok {
			hub.Label = node.Label
		}
		if len(hub.Links) > maxHubLinks {
			hub.Links = hub.Links[:maxHubLinks]
		}
		hubs = append(hubs, hub)
	}
	return hubs
}

// Drifts returns the alerts raised by the latest run of userID.
func (s *Service) Drifts(ctx context.Context, userID string) (*DriftView, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	detector := drift.NewDetector(s.engine.Config().Drift, zerolog.Nop())
	if err := detector.LoadFromJSON(profile.Snapshot.DriftState); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	return &DriftView{
		Alerts:      nonNil(detector.Alerts()),
		Significant: nonNil(detector.GetSignificantDrifts()),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
