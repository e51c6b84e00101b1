package pattern

import (
	"math"
	"sort"
	"time"

	"github.com/thebtf/tasteid/pkg/models"
)

// Evaluation is a detector's verdict over the full rating history.
type Evaluation struct {
	FirstSupport    time.Time
	LastSupport     time.Time
	Evidence        []string
	Confidence      float64
	Support         int
	EventsSinceSeen int
}

// Detector is one entry of the pattern catalog: a predicate plus confidence function
// over the ordered rating history. The detector id is the pattern id.
type Detector struct {
	evaluate    func(events []models.RatingEvent, config Config) Evaluation
	ID          string
	Name        string
	Description string
	Category    models.PatternCategory
}

// Evaluate runs the detector. Histories shorter than MinEvents never trigger.
func (d *Detector) Evaluate(events []models.RatingEvent, config Config) Evaluation {
	if len(events) < config.MinEvents {
		return Evaluation{EventsSinceSeen: len(events)}
	}
	return d.evaluate(events, config)
}

// Catalog returns the fixed detector catalog ordered by id.
func Catalog() []Detector {
	catalog := []Detector{
		{
			ID:          "discovery_comfort_oscillation",
			Name:        "Discovery-Comfort Oscillation",
			Description: "Alternates between artists new to you and artists you already know.",
			Category:    models.PatternCategoryExploration,
			evaluate:    detectOscillation,
		},
		{
			ID:          "deep_dive_sprints",
			Name:        "Deep Dive Sprints",
			Description: "Rates several albums by the same artist within a short window.",
			Category:    models.PatternCategoryLoyalty,
			evaluate:    detectDeepDiveSprints,
		},
		{
			ID:          "critical_ear",
			Name:        "Critical Ear",
			Description: "Hands out low scores far more often than most listeners.",
			Category:    models.PatternCategoryRating,
			evaluate:    detectCriticalEar,
		},
		{
			ID:          "generous_rater",
			Name:        "Generous Rater",
			Description: "Rates most albums well above the typical score.",
			Category:    models.PatternCategoryRating,
			evaluate:    detectGenerousRater,
		},
		{
			ID:          "genre_loyalist",
			Name:        "Genre Loyalist",
			Description: "Keeps coming back to one home genre.",
			Category:    models.PatternCategoryLoyalty,
			evaluate:    detectGenreLoyalist,
		},
		{
			ID:          "genre_hopper",
			Name:        "Genre Hopper",
			Description: "Jumps to an unrelated genre from one rating to the next.",
			Category:    models.PatternCategoryExploration,
			evaluate:    detectGenreHopper,
		},
		{
			ID:          "release_day_reactor",
			Name:        "Release Day Reactor",
			Description: "Rates albums in the year they come out.",
			Category:    models.PatternCategoryTiming,
			evaluate:    detectReleaseReactor,
		},
		{
			ID:          "binge_sessions",
			Name:        "Binge Sessions",
			Description: "Rates many albums within a single day.",
			Category:    models.PatternCategoryTiming,
			evaluate:    detectBingeSessions,
		},
		{
			ID:          "signature_mood",
			Name:        "Signature Mood",
			Description: "One vibe tag keeps showing up across ratings.",
			Category:    models.PatternCategoryMood,
			evaluate:    detectSignatureMood,
		},
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].ID < catalog[j].ID })
	return catalog
}

// MutuallyExclusive lists detector pairs that describe opposite behaviors. Both
// being confirmed at once is a contradiction.
var MutuallyExclusive = [][2]string{
	{"critical_ear", "generous_rater"},
	{"genre_hopper", "genre_loyalist"},
}

// supported builds an evaluation from per-event support flags.
func supported(events []models.RatingEvent, flags []bool, confidence float64) Evaluation {
	eval := Evaluation{Confidence: clamp01(confidence), EventsSinceSeen: len(events)}
	for i, ok := range flags {
		if !ok {
			continue
		}
		e := &events[i]
		if eval.Support == 0 {
			eval.FirstSupport = e.CreatedAt
		}
		eval.LastSupport = e.CreatedAt
		eval.Evidence = append(eval.Evidence, e.ID)
		eval.Support++
		eval.EventsSinceSeen = len(events) - 1 - i
	}
	return eval
}

// detectOscillation scores how often consecutive ratings switch between a first-time
// artist and a known one, weighted by how balanced the two kinds are.
// Ratings without an artist are neither novel nor familiar and are skipped.
func detectOscillation(events []models.RatingEvent, _ Config) Evaluation {
	seen := make(map[string]bool)
	novel := make([]bool, len(events))
	var credited []int
	novelCount := 0
	for i := range events {
		artist := events[i].ArtistKey()
		if artist == "" {
			continue
		}
		credited = append(credited, i)
		if !seen[artist] {
			novel[i] = true
			novelCount++
			seen[artist] = true
		}
	}

	n := len(credited)
	if n < 2 {
		return Evaluation{EventsSinceSeen: len(events)}
	}

	flags := make([]bool, len(events))
	switches := 0
	for k := 1; k < n; k++ {
		cur, prev := credited[k], credited[k-1]
		if novel[cur] != novel[prev] {
			flags[cur] = true
			switches++
		}
	}

	switchRate := float64(switches) / float64(n-1)
	balance := 2 * float64(min(novelCount, n-novelCount)) / float64(n)
	return supported(events, flags, switchRate*balance)
}

// detectDeepDiveSprints marks ratings that fall in a window holding at least
// SprintSize ratings of the same artist.
func detectDeepDiveSprints(events []models.RatingEvent, config Config) Evaluation {
	byArtist := make(map[string][]int)
	for i := range events {
		if a := events[i].ArtistKey(); a != "" {
			byArtist[a] = append(byArtist[a], i)
		}
	}

	window := time.Duration(config.SprintWindowDays) * 24 * time.Hour
	flags := markBursts(events, byArtist, config.SprintSize, window)
	share := float64(countTrue(flags)) / float64(len(events))
	return supported(events, flags, share/config.BurstShare)
}

// detectBingeSessions marks ratings that fall in a window holding at least
// BingeSize ratings of any artist.
func detectBingeSessions(events []models.RatingEvent, config Config) Evaluation {
	all := make([]int, len(events))
	for i := range all {
		all[i] = i
	}
	window := time.Duration(config.BingeWindowHours) * time.Hour
	flags := markBursts(events, map[string][]int{"": all}, config.BingeSize, window)
	share := float64(countTrue(flags)) / float64(len(events))
	return supported(events, flags, share/config.BurstShare)
}

// markBursts flags every index that belongs to a run of at least size events
// (per group) whose first and last timestamps are within window.
func markBursts(events []models.RatingEvent, groups map[string][]int, size int, window time.Duration) []bool {
	flags := make([]bool, len(events))
	if size <= 0 {
		return flags
	}
	for _, idx := range groups {
		start := 0
		for end := range idx {
			for events[idx[end]].CreatedAt.Sub(events[idx[start]].CreatedAt) > window {
				start++
			}
			if end-start+1 >= size {
				for k := start; k <= end; k++ {
					flags[idx[k]] = true
				}
			}
		}
	}
	return flags
}

// detectCriticalEar scores the share of ratings at least one population standard
// deviation below the population mean.
func detectCriticalEar(events []models.RatingEvent, config Config) Evaluation {
	cutoff := config.PopulationMeanRating - config.PopulationStdDev
	flags := make([]bool, len(events))
	for i := range events {
		flags[i] = events[i].Rating <= cutoff
	}
	share := float64(countTrue(flags)) / float64(len(events))
	return supported(events, flags, share/config.CriticalShare)
}

// detectGenerousRater scores the share of ratings at least one population standard
// deviation above the population mean.
func detectGenerousRater(events []models.RatingEvent, config Config) Evaluation {
	cutoff := config.PopulationMeanRating + config.PopulationStdDev
	flags := make([]bool, len(events))
	for i := range events {
		flags[i] = events[i].Rating >= cutoff
	}
	share := float64(countTrue(flags)) / float64(len(events))
	return supported(events, flags, share/config.GenerousShare)
}

// detectGenreLoyalist scores how concentrated ratings are on the most frequent genre.
func detectGenreLoyalist(events []models.RatingEvent, config Config) Evaluation {
	counts := make(map[string]int)
	tagged := 0
	for i := range events {
		genres := events[i].GenreKeys()
		if len(genres) > 0 {
			tagged++
		}
		for _, g := range genres {
			counts[g]++
		}
	}
	if tagged == 0 {
		return Evaluation{EventsSinceSeen: len(events)}
	}

	top, topCount := "", 0
	for g, c := range counts {
		if c > topCount || (c == topCount && g < top) {
			top, topCount = g, c
		}
	}

	flags := make([]bool, len(events))
	for i := range events {
		for _, g := range events[i].GenreKeys() {
			if g == top {
				flags[i] = true
				break
			}
		}
	}
	share := float64(topCount) / float64(tagged)
	return supported(events, flags, (share-config.LoyalistBaseShare)/config.LoyalistRange)
}

// detectGenreHopper scores how often a rating shares no genre with the one before
// it, weighted by how many distinct genres are involved.
func detectGenreHopper(events []models.RatingEvent, config Config) Evaluation {
	flags := make([]bool, len(events))
	distinct := make(map[string]bool)
	pairs, hops := 0, 0
	var prev []string
	for i := range events {
		genres := events[i].GenreKeys()
		for _, g := range genres {
			distinct[g] = true
		}
		if len(genres) == 0 {
			continue
		}
		if prev != nil {
			pairs++
			if !intersects(prev, genres) {
				flags[i] = true
				hops++
			}
		}
		prev = genres
	}
	if pairs == 0 {
		return Evaluation{EventsSinceSeen: len(events)}
	}

	breadth := math.Min(1, float64(len(distinct))/float64(config.HopperGenreBreadth))
	return supported(events, flags, float64(hops)/float64(pairs)*breadth)
}

// detectReleaseReactor scores the share of ratings made in the album's release year.
func detectReleaseReactor(events []models.RatingEvent, config Config) Evaluation {
	flags := make([]bool, len(events))
	for i := range events {
		e := &events[i]
		flags[i] = e.ReleaseYear > 0 && e.CreatedAt.Year() <= e.ReleaseYear
	}
	share := float64(countTrue(flags)) / float64(len(events))
	return supported(events, flags, share/config.ReactorShare)
}

// detectSignatureMood scores the share of ratings tagged with the most used vibe.
func detectSignatureMood(events []models.RatingEvent, config Config) Evaluation {
	counts := make(map[string]int)
	for i := range events {
		for _, v := range events[i].VibeKeys() {
			counts[v]++
		}
	}
	top, topCount := "", 0
	for v, c := range counts {
		if c > topCount || (c == topCount && v < top) {
			top, topCount = v, c
		}
	}
	if topCount == 0 {
		return Evaluation{EventsSinceSeen: len(events)}
	}

	flags := make([]bool, len(events))
	for i := range events {
		for _, v := range events[i].VibeKeys() {
			if v == top {
				flags[i] = true
				break
			}
		}
	}
	share := float64(topCount) / float64(len(events))
	return supported(events, flags, share/config.MoodShare)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
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
