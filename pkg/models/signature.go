package models

import (
	"math"
	"sort"
	"time"
)

// SignatureDimension names one of the seven canonical listening modes.
type SignatureDimension string

const (
	// DimensionDiscovery measures how often the user rates artists new to them.
	DimensionDiscovery SignatureDimension = "discovery"
	// DimensionComfort measures returns to already-known artists.
	DimensionComfort SignatureDimension = "comfort"
	// DimensionDeepDive measures sustained engagement with a single artist's catalog.
	DimensionDeepDive SignatureDimension = "deep_dive"
	// DimensionReactive measures ratings of just-released albums.
	DimensionReactive SignatureDimension = "reactive"
	// DimensionEmotional is driven by mood vibes (melancholic, cathartic, ...).
	DimensionEmotional SignatureDimension = "emotional"
	// DimensionSocial is driven by communal vibes (party, singalong, ...).
	DimensionSocial SignatureDimension = "social"
	// DimensionAesthetic is driven by sound/texture vibes (lush, lo-fi, ...).
	DimensionAesthetic SignatureDimension = "aesthetic"
)

// SignatureDimensions lists the dimensions in canonical order.
var SignatureDimensions = []SignatureDimension{
	DimensionDiscovery,
	DimensionComfort,
	DimensionDeepDive,
	DimensionReactive,
	DimensionEmotional,
	DimensionSocial,
	DimensionAesthetic,
}

// ListeningSignature holds one non-negative weight per listening mode.
type ListeningSignature struct {
	Discovery float64 `json:"discovery"`
	Comfort   float64 `json:"comfort"`
	DeepDive  float64 `json:"deep_dive"`
	Reactive  float64 `json:"reactive"`
	Emotional float64 `json:"emotional"`
	Social    float64 `json:"social"`
	Aesthetic float64 `json:"aesthetic"`
}

// SignatureFromVector builds a signature from a vector in canonical order.
func SignatureFromVector(v [7]float64) ListeningSignature {
	return ListeningSignature{
		Discovery: v[0],
		Comfort:   v[1],
		DeepDive:  v[2],
		Reactive:  v[3],
		Emotional: v[4],
		Social:    v[5],
		Aesthetic: v[6],
	}
}

// Vector returns the weights in canonical order.
func (s ListeningSignature) Vector() [7]float64 {
	return [7]float64{s.Discovery, s.Comfort, s.DeepDive, s.Reactive, s.Emotional, s.Social, s.Aesthetic}
}

// Get returns the weight of a single dimension. Unknown dimensions return 0.
func (s ListeningSignature) Get(d SignatureDimension) float64 {
	for i, dim := range SignatureDimensions {
		if dim == d {
			return s.Vector()[i]
		}
	}
	return 0
}

// Add increases a dimension by delta. Unknown dimensions are ignored.
func (s *ListeningSignature) Add(d SignatureDimension, delta float64) {
	switch d {
	case DimensionDiscovery:
		s.Discovery += delta
	case DimensionComfort:
		s.Comfort += delta
	case DimensionDeepDive:
		s.DeepDive += delta
	case DimensionReactive:
		s.Reactive += delta
	case DimensionEmotional:
		s.Emotional += delta
	case DimensionSocial:
		s.Social += delta
	case DimensionAesthetic:
		s.Aesthetic += delta
	}
}

// Sum returns the total weight across all dimensions.
func (s ListeningSignature) Sum() float64 {
	total := 0.0
	for _, v := range s.Vector() {
		total += v
	}
	return total
}

// Normalized returns a copy scaled to sum to 1. An all-zero signature stays zero.
func (s ListeningSignature) Normalized() ListeningSignature {
	total := s.Sum()
	if total <= 0 {
		return ListeningSignature{}
	}
	v := s.Vector()
	for i := range v {
		v[i] /= total
	}
	return SignatureFromVector(v)
}

// RatingSkew classifies how a user rates relative to the population.
type RatingSkew string

const (
	// RatingSkewHarsh means the user's average sits well below the population mean.
	RatingSkewHarsh RatingSkew = "harsh"
	// RatingSkewLenient means the user's average sits well above the population mean.
	RatingSkewLenient RatingSkew = "lenient"
	// RatingSkewBalanced means the user's average is close to the population mean.
	RatingSkewBalanced RatingSkew = "balanced"
)

// RatingStyle summarizes the distribution of a user's ratings.
type RatingStyle struct {
	Skew    RatingSkew `json:"skew"`
	Average float64    `json:"average"`
	StdDev  float64    `json:"std_dev"`
}

// ArchetypeID identifies a prototype listening profile.
type ArchetypeID string

// ArchetypeResult is the nearest-prototype classification of a signature.
type ArchetypeResult struct {
	Primary            ArchetypeID `json:"primary"`
	Secondary          ArchetypeID `json:"secondary,omitempty"`
	TopGenres          []string    `json:"top_genres"`
	TopArtists         []string    `json:"top_artists"`
	Confidence         float64     `json:"confidence"`
	AdventurenessScore float64     `json:"adventureness_score"`
	PolarityScore      float64     `json:"polarity_score"`
}

// RankedEntry is a name with its occurrence count.
type RankedEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TasteStats holds summary statistics over the rating history.
type TasteStats struct {
	FirstRatedAt    time.Time     `json:"first_rated_at"`
	LastRatedAt     time.Time     `json:"last_rated_at"`
	TopGenres       []RankedEntry `json:"top_genres"`
	TopArtists      []RankedEntry `json:"top_artists"`
	RatingCount     int           `json:"rating_count"`
	DistinctArtists int           `json:"distinct_artists"`
	DistinctGenres  int           `json:"distinct_genres"`
}

// CosineSimilarity returns the cosine of the angle between two signatures, in [0,1]
// for non-negative weights. Zero signatures have similarity 0.
func (s ListeningSignature) CosineSimilarity(other ListeningSignature) float64 {
	a, b := s.Vector(), other.Vector()
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankEntries returns the n most frequent keys, ties broken alphabetically.
func RankEntries(counts map[string]int, n int) []RankedEntry {
	entries := make([]RankedEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, RankedEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
