package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Snapshot is the persisted engine state for one user: four independently loadable
// JSON blobs. Callers treat them as opaque and only replace them via a full recompute.
type Snapshot struct {
	PatternState   json.RawMessage `json:"pattern_state,omitempty"`
	CognitiveGraph json.RawMessage `json:"cognitive_graph,omitempty"`
	EpisodeHistory json.RawMessage `json:"episode_history,omitempty"`
	DriftState     json.RawMessage `json:"drift_state,omitempty"`
}

// IsEmpty reports whether no blob is present (first-ever run).
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (len(s.PatternState) == 0 && len(s.CognitiveGraph) == 0 &&
		len(s.EpisodeHistory) == 0 && len(s.DriftState) == 0)
}

// Profile is the primary profile row: the signature computer output as flat fields
// plus the snapshot blobs.
type Profile struct {
	ComputedAt   time.Time          `json:"computed_at"`
	UserID       string             `json:"user_id"`
	RunID        string             `json:"run_id"`
	Archetype    ArchetypeResult    `json:"archetype"`
	Stats        TasteStats         `json:"stats"`
	Snapshot     Snapshot           `json:"-"`
	RatingStyle  RatingStyle        `json:"rating_style"`
	Signature    ListeningSignature `json:"signature"`
	RawSignature ListeningSignature `json:"raw_signature"`
	Version      int64              `json:"version"`
}
