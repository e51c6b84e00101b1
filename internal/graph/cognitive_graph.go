// Package graph provides the cognitive graph: the long-term association memory
// linking episodes, taste clusters and patterns.
//
// The graph is an arena. Nodes are keyed by a stable composite id ("type:key") and
// edges are (from, to, relation, weight) entries keyed by endpoints and relation, so
// serialization and merge-on-reload never depend on object identity.
package graph

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/pkg/models"
)

// Config contains configuration for edge learning.
type Config struct {
	// Decay is the EMA weight given to the old edge weight on reinforcement (0.0-1.0).
	Decay float64 `json:"decay" validate:"gte=0,lt=1"`
	// UnobservedDecay multiplies edges that were not reinforced in a pass over a grown history.
	UnobservedDecay float64 `json:"unobserved_decay" validate:"gt=0,lte=1"`
	// PruneBelow removes edges whose weight falls under this value.
	PruneBelow float64 `json:"prune_below" validate:"gte=0,lt=1"`
}

// DefaultConfig returns the default edge-learning configuration.
func DefaultConfig() Config {
	return Config{
		Decay:           0.7,
		UnobservedDecay: 0.9,
		PruneBelow:      0.05,
	}
}

// CognitiveGraph manages nodes and weighted edges.
//
// Learning happens in passes: BeginPass, then UpsertNode/Reinforce, then EndPass.
// Weights only move when the pass covers a longer history than the last one, so a
// pass over the same history leaves the graph unchanged.
type CognitiveGraph struct {
	nodes        map[string]*models.CognitiveNode
	edges        map[string]*models.CognitiveEdge
	seenNodes    map[string]bool
	seenEdges    map[string]bool
	logger       zerolog.Logger
	config       Config
	consolidated int
	learning     bool
	mu           sync.RWMutex
}

// NewCognitiveGraph creates an empty graph.
func NewCognitiveGraph(config Config, logger zerolog.Logger) *CognitiveGraph {
	return &CognitiveGraph{
		nodes:  make(map[string]*models.CognitiveNode),
		edges:  make(map[string]*models.CognitiveEdge),
		logger: logger.With().Str("component", "graph").Logger(),
		config: config,
	}
}

// Load merges a persisted graph into this one. Nodes and edges already present are
// kept (matched by id and edge key), never duplicated. Invalid state is rejected as a
// whole and leaves the graph untouched.
func (g *CognitiveGraph) Load(state models.GraphState) error {
	if err := validateState(state); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range state.Nodes {
		n := state.Nodes[i]
		if _, ok := g.nodes[n.ID]; !ok {
			g.nodes[n.ID] = &n
		}
	}
	for i := range state.Edges {
		e := state.Edges[i]
		if _, ok := g.edges[e.EdgeKey()]; !ok {
			g.edges[e.EdgeKey()] = &e
		}
	}
	g.consolidated = max(g.consolidated, state.ConsolidatedEvents)
	return nil
}

func validateState(state models.GraphState) error {
	ids := make(map[string]bool, len(state.Nodes))
	for _, n := range state.Nodes {
		t, key, ok := models.SplitNodeID(n.ID)
		if !ok || t != n.Type || key != n.Key {
			return fmt.Errorf("node %q does not match its type and key", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range state.Edges {
		if !ids[e.From] || !ids[e.To] {
			return fmt.Errorf("edge %s references an unknown node", e.EdgeKey())
		}
		if math.IsNaN(e.Weight) || e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("edge %s has weight %f outside [0,1]", e.EdgeKey(), e.Weight)
		}
	}
	if state.ConsolidatedEvents < 0 {
		return fmt.Errorf("negative consolidated event count")
	}
	return nil
}

// State returns the persistable graph with nodes and edges in stable order.
func (g *CognitiveGraph) State() models.GraphState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state := models.GraphState{
		Nodes:              make([]models.CognitiveNode, 0, len(g.nodes)),
		Edges:              make([]models.CognitiveEdge, 0, len(g.edges)),
		ConsolidatedEvents: g.consolidated,
	}
	for _, n := range g.nodes {
		state.Nodes = append(state.Nodes, *n)
	}
	for _, e := range g.edges {
		state.Edges = append(state.Edges, *e)
	}
	sort.Slice(state.Nodes, func(i, j int) bool { return state.Nodes[i].ID < state.Nodes[j].ID })
	sort.Slice(state.Edges, func(i, j int) bool { return state.Edges[i].EdgeKey() < state.Edges[j].EdgeKey() })
	return state
}

// BeginPass starts a learning pass over a history of eventCount events.
func (g *CognitiveGraph) BeginPass(eventCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.learning = eventCount > g.consolidated
	g.seenNodes = make(map[string]bool)
	g.seenEdges = make(map[string]bool)
	if g.learning {
		g.consolidated = eventCount
	}
}

// EndPass decays and prunes edges that were not reinforced during a learning pass,
// then drops nodes that were neither seen nor connected. It returns the number of
// pruned edges.
func (g *CognitiveGraph) EndPass() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	pruned := 0
	if g.learning {
		for key, e := range g.edges {
			if g.seenEdges[key] {
				continue
			}
			e.Weight *= g.config.UnobservedDecay
			if e.Weight < g.config.PruneBelow {
				delete(g.edges, key)
				pruned++
			}
		}
	}

	connected := make(map[string]bool, len(g.nodes))
	for _, e := range g.edges {
		connected[e.From] = true
		connected[e.To] = true
	}
	for id := range g.nodes {
		if g.seenNodes != nil && !g.seenNodes[id] && !connected[id] {
			delete(g.nodes, id)
		}
	}

	if pruned > 0 {
		g.logger.Debug().Int("pruned", pruned).Int("edges", len(g.edges)).Msg("Pruned weak edges")
	}
	g.seenNodes, g.seenEdges, g.learning = nil, nil, false
	return pruned
}

// UpsertNode adds a node or refreshes its label, keyed by its composite id.
func (g *CognitiveGraph) UpsertNode(t models.NodeType, key, label string) string {
	id := models.NodeID(t, key)

	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.nodes[id]; ok {
		n.Label = label
	} else {
		g.nodes[id] = &models.CognitiveNode{ID: id, Type: t, Key: key, Label: label}
	}
	if g.seenNodes != nil {
		g.seenNodes[id] = true
	}
	return id
}

// Reinforce deposits an observed association strength on the edge from -> to.
// A new edge starts at the observed strength; an existing edge moves by
// newWeight = decay*oldWeight + (1-decay)*strength when the pass is learning.
func (g *CognitiveGraph) Reinforce(from, to string, relation models.EdgeRelation, strength float64) error {
	strength = clamp01(strength)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("reinforce: unknown node %q", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("reinforce: unknown node %q", to)
	}

	edge := models.CognitiveEdge{From: from, To: to, Relation: relation}
	key := edge.EdgeKey()
	if g.seenEdges != nil {
		g.seenEdges[key] = true
	}

	existing, ok := g.edges[key]
	if !ok {
		edge.Weight = strength
		g.edges[key] = &edge
		return nil
	}
	if g.learning || g.seenEdges == nil {
		existing.Weight = g.config.Decay*existing.Weight + (1-g.config.Decay)*strength
	}
	return nil
}

// Node returns a copy of the node with the given id.
func (g *CognitiveGraph) Node(id string) (models.CognitiveNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return models.CognitiveNode{}, false
	}
	return *n, true
}

// Neighbor is an adjacent node with the weight of the connecting edge.
type Neighbor struct {
	ID       string              `json:"id"`
	Relation models.EdgeRelation `json:"relation"`
	Weight   float64             `json:"weight"`
}

// Neighbors returns nodes adjacent to id in either direction, strongest first.
func (g *CognitiveGraph) Neighbors(id string) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Neighbor
	for _, e := range g.edges {
		switch id {
		case e.From:
			out = append(out, Neighbor{ID: e.To, Relation: e.Relation, Weight: e.Weight})
		case e.To:
			out = append(out, Neighbor{ID: e.From, Relation: e.Relation, Weight: e.Weight})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindHubs returns up to n nodes of the given type ordered by weighted degree.
func (g *CognitiveGraph) FindHubs(t models.NodeType, n int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	degree := make(map[string]float64)
	for _, e := range g.edges {
		degree[e.From] += e.Weight
		degree[e.To] += e.Weight
	}

	hubs := make([]string, 0, len(g.nodes))
	for id, node := range g.nodes {
		if node.Type == t && degree[id] > 0 {
			hubs = append(hubs, id)
		}
	}
	sort.Slice(hubs, func(i, j int) bool {
		if degree[hubs[i]] != degree[hubs[j]] {
			return degree[hubs[i]] > degree[hubs[j]]
		}
		return hubs[i] < hubs[j]
	})
	if n > 0 && len(hubs) > n {
		hubs = hubs[:n]
	}
	return hubs
}

// Stats contains graph statistics.
type Stats struct {
	NodeTypes map[models.NodeType]int
	EdgeTypes map[models.EdgeRelation]int
	AvgDegree float64
	NodeCount int
	EdgeCount int
	MaxDegree int
}

// Stats returns graph statistics.
func (g *CognitiveGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{
		NodeCount: len(g.nodes),
		EdgeCount: len(g.edges),
		NodeTypes: make(map[models.NodeType]int),
		EdgeTypes: make(map[models.EdgeRelation]int),
	}
	degrees := make(map[string]int, len(g.nodes))
	for _, e := range g.edges {
		stats.EdgeTypes[e.Relation]++
		degrees[e.From]++
		degrees[e.To]++
	}
	for id, n := range g.nodes {
		stats.NodeTypes[n.Type]++
		stats.MaxDegree = max(stats.MaxDegree, degrees[id])
	}
	if len(g.nodes) > 0 {
		stats.AvgDegree = float64(2*len(g.edges)) / float64(len(g.nodes))
	}
	return stats
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
