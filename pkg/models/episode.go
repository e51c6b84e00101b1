package models

import "time"

// Episode is a contiguous run of rating events treated as one listening session or theme.
type Episode struct {
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	ID              string    `json:"id"`
	MemberEventIDs  []string  `json:"member_event_ids"`
	DominantGenres  []string  `json:"dominant_genres"`
	DominantArtists []string  `json:"dominant_artists"`
	AverageRating   float64   `json:"average_rating"`
}

// Size returns the number of member events.
func (e *Episode) Size() int {
	return len(e.MemberEventIDs)
}

// Duration returns the time between the first and last member event.
func (e *Episode) Duration() time.Duration {
	return e.EndAt.Sub(e.StartAt)
}

// TasteKind is the type of cluster a consolidated taste tracks.
type TasteKind string

const (
	// TasteKindGenre tracks a genre cluster.
	TasteKindGenre TasteKind = "genre"
	// TasteKindArtist tracks an artist cluster.
	TasteKindArtist TasteKind = "artist"
)

// TasteTrend is the direction a taste cluster is moving in.
type TasteTrend string

const (
	// TrendStrengthening means the cluster's recent share grew.
	TrendStrengthening TasteTrend = "strengthening"
	// TrendWeakening means the cluster's recent share shrank.
	TrendWeakening TasteTrend = "weakening"
	// TrendStable means the share moved less than the change threshold.
	TrendStable TasteTrend = "stable"
)

// ConsolidatedTaste is the long-run trend of one genre or artist cluster.
type ConsolidatedTaste struct {
	Kind        TasteKind  `json:"kind"`
	Key         string     `json:"key"`
	Trend       TasteTrend `json:"trend"`
	Count       int        `json:"count"`
	Share       float64    `json:"share"`
	RecentShare float64    `json:"recent_share"`
	PriorShare  float64    `json:"prior_share"`
}

// EpisodeStats summarizes the episode history and the graph built from it.
type EpisodeStats struct {
	TotalEpisodes        int     `json:"total_episodes"`
	TotalEvents          int     `json:"total_events"`
	LongestEpisodeEvents int     `json:"longest_episode_events"`
	NodeCount            int     `json:"node_count"`
	EdgeCount            int     `json:"edge_count"`
	AvgEventsPerEpisode  float64 `json:"avg_events_per_episode"`
	AvgDurationHours     float64 `json:"avg_duration_hours"`
}

// EpisodeHistory is the persisted episode-history blob.
type EpisodeHistory struct {
	Episodes []Episode           `json:"episodes"`
	Tastes   []ConsolidatedTaste `json:"tastes"`
	Graph    EpisodeStats        `json:"graph"`
}
