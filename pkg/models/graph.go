package models

import "strings"

// NodeType is the kind of entity a cognitive node represents.
type NodeType string

const (
	// NodeTypeEpisode represents an episode.
	NodeTypeEpisode NodeType = "episode"
	// NodeTypeTaste represents a recurring genre or artist cluster.
	NodeTypeTaste NodeType = "taste"
	// NodeTypePattern represents a confirmed pattern.
	NodeTypePattern NodeType = "pattern"
)

// EdgeRelation describes why two nodes are associated.
type EdgeRelation string

const (
	// RelationFeatures links an episode to a taste cluster it contains.
	RelationFeatures EdgeRelation = "features"
	// RelationExhibits links a pattern to an episode or taste that shows it.
	RelationExhibits EdgeRelation = "exhibits"
	// RelationContinues links consecutive episodes that share dominant genres.
	RelationContinues EdgeRelation = "continues"
)

// NodeID builds the stable composite identity of a node: "<type>:<key>".
func NodeID(t NodeType, key string) string {
	return string(t) + ":" + key
}

// SplitNodeID is the inverse of NodeID.
func SplitNodeID(id string) (NodeType, string, bool) {
	t, key, ok := strings.Cut(id, ":")
	if !ok || key == "" {
		return "", "", false
	}
	return NodeType(t), key, true
}

// CognitiveNode is a stable entity in the long-term association graph.
type CognitiveNode struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Key   string   `json:"key"`
	Label string   `json:"label,omitempty"`
}

// CognitiveEdge is a learned association strength between two nodes.
type CognitiveEdge struct {
	From     string       `json:"from"`
	To       string       `json:"to"`
	Relation EdgeRelation `json:"relation"`
	Weight   float64      `json:"weight"`
}

// EdgeKey returns the identity of an edge: endpoints and relation.
func (e *CognitiveEdge) EdgeKey() string {
	return e.From + "|" + e.To + "|" + string(e.Relation)
}

// GraphState is the persisted cognitive-graph blob.
type GraphState struct {
	Nodes []CognitiveNode `json:"nodes"`
	Edges []CognitiveEdge `json:"edges"`
	// ConsolidatedEvents is the history length the graph was last consolidated against.
	ConsolidatedEvents int `json:"consolidated_events"`
}
