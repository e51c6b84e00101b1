// Package signature maps a rating history onto a listening signature, a rating
// style and an archetype classification.
package signature

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/thebtf/tasteid/pkg/models"
)

// Config contains the constants the signature computer is calibrated with.
type Config struct {
	// PopulationMeanRating is the mean rating across all users (default 6.8).
	PopulationMeanRating float64 `json:"population_mean_rating" validate:"gte=0,lte=10"`
	// PopulationStdDev is the standard deviation of ratings across all users (default 1.8).
	PopulationStdDev float64 `json:"population_std_dev" validate:"gt=0"`
	// SkewBand is how many population standard deviations separate harsh/lenient from balanced (default 0.75).
	SkewBand float64 `json:"skew_band" validate:"gt=0"`
	// SecondaryTolerance is the max distance gap for a secondary archetype (default 0.1).
	SecondaryTolerance float64 `json:"secondary_tolerance" validate:"gte=0,lte=1"`
	// PolarityScale is the stdDev at which polarity saturates at 1 (default 3.0).
	PolarityScale float64 `json:"polarity_scale" validate:"gt=0"`
	// FullConfidenceEvents is the history length at which archetype confidence is unscaled (default 20).
	FullConfidenceEvents int `json:"full_confidence_events" validate:"min=1"`
	// DeepDiveMinPrior is the number of earlier ratings of an artist that makes a rating a deep dive (default 3).
	DeepDiveMinPrior int `json:"deep_dive_min_prior" validate:"min=1"`
	// TopN is the number of top genres/artists reported (default 5).
	TopN int `json:"top_n" validate:"min=1"`
	// NewGenreWeight is the discovery credit for a rating that brings a genre not seen before (default 0.5).
	NewGenreWeight float64 `json:"new_genre_weight" validate:"gte=0,lte=1"`
	// LateReleaseWeight is the reactive credit for a rating made the year after release (default 0.25).
	LateReleaseWeight float64 `json:"late_release_weight" validate:"gte=0,lte=1"`
	// Adventureness blends artist diversity, genre diversity and the spread away
	// from the top artist.
	ArtistDiversityWeight float64 `json:"artist_diversity_weight" validate:"gte=0,lte=1"`
	GenreDiversityWeight  float64 `json:"genre_diversity_weight" validate:"gte=0,lte=1"`
	SpreadWeight          float64 `json:"spread_weight" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the default signature configuration.
func DefaultConfig() Config {
	return Config{
		PopulationMeanRating:  6.8,
		PopulationStdDev:      1.8,
		SkewBand:              0.75,
		SecondaryTolerance:    0.1,
		PolarityScale:         3.0,
		FullConfidenceEvents:  20,
		DeepDiveMinPrior:      3,
		TopN:                  5,
		NewGenreWeight:        0.5,
		LateReleaseWeight:     0.25,
		ArtistDiversityWeight: 0.4,
		GenreDiversityWeight:  0.4,
		SpreadWeight:          0.2,
	}
}

// Result is the full output of one signature computation.
type Result struct {
	Archetype    models.ArchetypeResult
	Stats        models.TasteStats
	RatingStyle  models.RatingStyle
	Signature    models.ListeningSignature // normalized for display
	RawSignature models.ListeningSignature // raw sums, kept for trend comparison
}

// Computer computes listening signatures. It holds no per-user state.
type Computer struct {
	vocab  *Vocabulary
	config Config
	logger zerolog.Logger
}

// NewComputer creates a signature computer. A nil vocabulary selects the embedded default.
func NewComputer(config Config, vocab *Vocabulary, logger zerolog.Logger) *Computer {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Computer{
		vocab:  vocab,
		config: config,
		logger: logger.With().Str("component", "signature").Logger(),
	}
}

// Compute derives the signature, rating style, archetype and stats from events.
// Events must be ordered by CreatedAt. Sparse input yields low confidence, never an error.
func (c *Computer) Compute(events []models.RatingEvent) *Result {
	raw := c.rawSignature(events)
	style := c.ratingStyle(events)
	stats := c.stats(events)

	normalized := raw.Normalized()
	archetype := c.classify(normalized, len(events))
	archetype.AdventurenessScore = c.adventureness(events)
	archetype.PolarityScore = clamp01(style.StdDev / c.config.PolarityScale)
	archetype.TopGenres = entryNames(stats.TopGenres)
	archetype.TopArtists = entryNames(stats.TopArtists)

	c.logger.Debug().
		Int("events", len(events)).
		Str("primary", string(archetype.Primary)).
		Float64("confidence", archetype.Confidence).
		Msg("Signature computed")

	return &Result{
		Signature:    normalized,
		RawSignature: raw,
		RatingStyle:  style,
		Archetype:    archetype,
		Stats:        stats,
	}
}

// rawSignature applies the per-event scoring rule in chronological order.
func (c *Computer) rawSignature(events []models.RatingEvent) models.ListeningSignature {
	var sig models.ListeningSignature
	artistCounts := make(map[string]int)
	genresSeen := make(map[string]bool)

	for i := range events {
		e := &events[i]
		artist := e.ArtistKey()
		prior := artistCounts[artist]

		if artist != "" {
			if prior == 0 {
				sig.Add(models.DimensionDiscovery, 1)
			} else {
				sig.Add(models.DimensionComfort, 1)
			}
			if prior >= c.config.DeepDiveMinPrior {
				sig.Add(models.DimensionDeepDive, 1)
			}
			artistCounts[artist]++
		}

		newGenre := false
		for _, g := range e.GenreKeys() {
			if !genresSeen[g] {
				genresSeen[g] = true
				newGenre = true
			}
		}
		if newGenre {
			sig.Add(models.DimensionDiscovery, c.config.NewGenreWeight)
		}

		if e.ReleaseYear > 0 {
			switch age := e.CreatedAt.Year() - e.ReleaseYear; {
			case age <= 0:
				sig.Add(models.DimensionReactive, 1)
			case age == 1:
				sig.Add(models.DimensionReactive, c.config.LateReleaseWeight)
			}
		}

		for _, vibe := range e.VibeKeys() {
			weights, ok := c.vocab.VibeWeights(vibe)
			if !ok {
				continue
			}
			for _, dim := range models.SignatureDimensions {
				sig.Add(dim, weights.Get(dim))
			}
		}
	}

	return sig
}

// ratingStyle computes mean, population stddev and the skew against the population.
func (c *Computer) ratingStyle(events []models.RatingEvent) models.RatingStyle {
	if len(events) == 0 {
		return models.RatingStyle{Skew: models.RatingSkewBalanced}
	}

	sum := 0.0
	for i := range events {
		sum += events[i].Rating
	}
	mean := sum / float64(len(events))

	variance := 0.0
	for i := range events {
		d := events[i].Rating - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(len(events)))

	band := c.config.SkewBand * c.config.PopulationStdDev
	skew := models.RatingSkewBalanced
	switch {
	case mean < c.config.PopulationMeanRating-band:
		skew = models.RatingSkewHarsh
	case mean > c.config.PopulationMeanRating+band:
		skew = models.RatingSkewLenient
	}

	return models.RatingStyle{Average: mean, StdDev: stdDev, Skew: skew}
}

// classify finds the nearest archetype prototype by Euclidean distance between
// normalized signatures. Confidence is 1 - d/sqrt(2), scaled down for short histories.
func (c *Computer) classify(sig models.ListeningSignature, eventCount int) models.ArchetypeResult {
	type scored struct {
		id   models.ArchetypeID
		dist float64
	}

	archetypes := c.vocab.Archetypes()
	ranked := make([]scored, 0, len(archetypes))
	for _, a := range archetypes {
		ranked = append(ranked, scored{id: a.ID, dist: Distance(sig, a.Prototype)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].dist < ranked[j].dist
	})

	var result models.ArchetypeResult
	if len(ranked) == 0 {
		return result
	}

	best := ranked[0]
	result.Primary = best.id
	result.Confidence = ConfidenceFromDistance(best.dist) * historyFactor(eventCount, c.config.FullConfidenceEvents)
	result.Confidence = clamp01(result.Confidence)

	if len(ranked) > 1 && ranked[1].dist-best.dist <= c.config.SecondaryTolerance {
		result.Secondary = ranked[1].id
	}
	return result
}

// Distance is the Euclidean distance between two signature vectors.
func Distance(a, b models.ListeningSignature) float64 {
	va, vb := a.Vector(), b.Vector()
	sum := 0.0
	for i := range va {
		d := va[i] - vb[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ConfidenceFromDistance maps a distance between normalized signatures onto [0,1].
// sqrt(2) is the largest distance two normalized signatures can have.
func ConfidenceFromDistance(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	return clamp01(1 - d/math.Sqrt2)
}

func historyFactor(n, full int) float64 {
	if full <= 0 || n >= full {
		return 1
	}
	if n <= 0 {
		return 0
	}
	return math.Sqrt(float64(n) / float64(full))
}

// adventureness rewards artist and genre diversity and penalizes concentration
// on a single artist.
func (c *Computer) adventureness(events []models.RatingEvent) float64 {
	artistCounts := make(map[string]int)
	genres := make(map[string]bool)
	withArtist := 0
	for i := range events {
		if a := events[i].ArtistKey(); a != "" {
			artistCounts[a]++
			withArtist++
		}
		for _, g := range events[i].GenreKeys() {
			genres[g] = true
		}
	}
	if len(events) == 0 {
		return 0
	}

	artistDiversity, topShare := 0.0, 1.0
	if withArtist > 0 {
		top := 0
		for _, n := range artistCounts {
			top = max(top, n)
		}
		artistDiversity = float64(len(artistCounts)) / float64(withArtist)
		topShare = float64(top) / float64(withArtist)
	}
	genreDiversity := math.Min(1, float64(len(genres))/float64(len(events)))

	return clamp01(c.config.ArtistDiversityWeight*artistDiversity +
		c.config.GenreDiversityWeight*genreDiversity +
		c.config.SpreadWeight*(1-topShare))
}

func (c *Computer) stats(events []models.RatingEvent) models.TasteStats {
	stats := models.TasteStats{RatingCount: len(events)}
	if len(events) == 0 {
		return stats
	}

	genreCounts := make(map[string]int)
	artistCounts := make(map[string]int)
	for i := range events {
		if a := events[i].ArtistKey(); a != "" {
			artistCounts[a]++
		}
		for _, g := range events[i].GenreKeys() {
			genreCounts[g]++
		}
	}

	stats.FirstRatedAt = events[0].CreatedAt
	stats.LastRatedAt = events[len(events)-1].CreatedAt
	stats.DistinctArtists = len(artistCounts)
	stats.DistinctGenres = len(genreCounts)
	stats.TopGenres = models.RankEntries(genreCounts, c.config.TopN)
	stats.TopArtists = models.RankEntries(artistCounts, c.config.TopN)
	return stats
}

func entryNames(entries []models.RankedEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
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
