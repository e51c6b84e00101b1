package graph

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tasteid/pkg/models"
)

func newTestGraph() *CognitiveGraph {
	return NewCognitiveGraph(DefaultConfig(), zerolog.Nop())
}

func TestReinforce_ReloadedEdgeIsNotDuplicated(t *testing.T) {
	g := newTestGraph()
	p := g.UpsertNode(models.NodeTypePattern, "critical_ear", "Critical Ear")
	ep := g.UpsertNode(models.NodeTypeEpisode, "ep-e1", "")
	require.NoError(t, g.Reinforce(p, ep, models.RelationExhibits, 0.8))

	reloaded := newTestGraph()
	require.NoError(t, reloaded.Load(g.State()))

	require.NoError(t, reloaded.Reinforce(p, ep, models.RelationExhibits, 0.2))
	require.NoError(t, reloaded.Reinforce(p, ep, models.RelationExhibits, 0.2))

	state := reloaded.State()
	require.Len(t, state.Edges, 1)
	// 0.8 -> 0.7*0.8+0.3*0.2 = 0.62 -> 0.7*0.62+0.3*0.2 = 0.494
	assert.InDelta(t, 0.494, state.Edges[0].Weight, 1e-9)
}

func TestLoad_MergeKeepsExistingEntries(t *testing.T) {
	g := newTestGraph()
	a := g.UpsertNode(models.NodeTypeTaste, "genre:shoegaze", "shoegaze")
	b := g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
	require.NoError(t, g.Reinforce(b, a, models.RelationFeatures, 0.5))

	state := g.State()
	require.NoError(t, g.Load(state))
	require.NoError(t, g.Load(state))

	stats := g.Stats()
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.Equal(t, 1, stats.EdgeTypes[models.RelationFeatures])
}

func TestLoad_RejectsInvalidState(t *testing.T) {
	tests := map[string]models.GraphState{
		"mismatched id": {
			Nodes: []models.CognitiveNode{{ID: "taste:x", Type: models.NodeTypeEpisode, Key: "x"}},
		},
		"dangling edge": {
			Nodes: []models.CognitiveNode{{ID: "episode:a", Type: models.NodeTypeEpisode, Key: "a"}},
			Edges: []models.CognitiveEdge{{From: "episode:a", To: "episode:b", Relation: models.RelationContinues, Weight: 0.5}},
		},
		"weight out of range": {
			Nodes: []models.CognitiveNode{
				{ID: "episode:a", Type: models.NodeTypeEpisode, Key: "a"},
				{ID: "episode:b", Type: models.NodeTypeEpisode, Key: "b"},
			},
			Edges: []models.CognitiveEdge{{From: "episode:a", To: "episode:b", Relation: models.RelationContinues, Weight: 3}},
		},
	}
	for name, state := range tests {
		t.Run(name, func(t *testing.T) {
			g := newTestGraph()
			assert.Error(t, g.Load(state))
			assert.Equal(t, 0, g.Stats().NodeCount)
		})
	}
}

func TestPass_SameHistoryLeavesWeightsUnchanged(t *testing.T) {
	g := newTestGraph()
	run := func(eventCount int, strength float64) {
		g.BeginPass(eventCount)
		a := g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
		b := g.UpsertNode(models.NodeTypeTaste, "genre:ambient", "ambient")
		require.NoError(t, g.Reinforce(a, b, models.RelationFeatures, strength))
		g.EndPass()
	}

	run(10, 0.4)
	run(20, 0.9) // grown history: EMA applies
	first := g.State()
	run(20, 0.9) // same history: no change
	second := g.State()

	assert.Equal(t, first, second)
	assert.InDelta(t, 0.7*0.4+0.3*0.9, second.Edges[0].Weight, 1e-9)
}

func TestPass_UnobservedEdgesDecayAndPrune(t *testing.T) {
	g := newTestGraph()
	g.BeginPass(10)
	a := g.UpsertNode(models.NodeTypePattern, "genre_hopper", "")
	b := g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
	require.NoError(t, g.Reinforce(a, b, models.RelationExhibits, 0.055))
	g.EndPass()

	// Same history: nothing decays even though the edge was not reinforced.
	g.BeginPass(10)
	g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
	assert.Equal(t, 0, g.EndPass())
	assert.Len(t, g.Neighbors(a), 1)

	// Grown history without reinforcement: 0.055*0.9 < 0.05 is pruned, and the
	// pattern node is dropped once unconnected and unseen.
	g.BeginPass(11)
	g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
	assert.Equal(t, 1, g.EndPass())
	assert.Empty(t, g.Neighbors(b))
	_, ok := g.Node(a)
	assert.False(t, ok)
	_, ok = g.Node(b)
	assert.True(t, ok)
}

func TestReinforce_UnknownNode(t *testing.T) {
	g := newTestGraph()
	a := g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
	assert.Error(t, g.Reinforce(a, "taste:genre:missing", models.RelationFeatures, 0.5))
}

func TestNeighborsAndHubs(t *testing.T) {
	g := newTestGraph()
	ep1 := g.UpsertNode(models.NodeTypeEpisode, "ep-1", "")
	ep2 := g.UpsertNode(models.NodeTypeEpisode, "ep-2", "")
	rock := g.UpsertNode(models.NodeTypeTaste, "genre:rock", "rock")
	jazz := g.UpsertNode(models.NodeTypeTaste, "genre:jazz", "jazz")
	require.NoError(t, g.Reinforce(ep1, rock, models.RelationFeatures, 0.9))
	require.NoError(t, g.Reinforce(ep2, rock, models.RelationFeatures, 0.6))
	require.NoError(t, g.Reinforce(ep2, jazz, models.RelationFeatures, 0.4))

	neighbors := g.Neighbors(ep2)
	require.Len(t, neighbors, 2)
	assert.Equal(t, rock, neighbors[0].ID)
	assert.Equal(t, jazz, neighbors[1].ID)

	assert.Equal(t, []string{rock, jazz}, g.FindHubs(models.NodeTypeTaste, 0))
	assert.Equal(t, []string{rock}, g.FindHubs(models.NodeTypeTaste, 1))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, []string{"a"}))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
}
