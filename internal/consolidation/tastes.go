package consolidation

import (
	"sort"
	"strings"

	"github.com/thebtf/tasteid/pkg/models"
)

// tasteKeys returns the taste-cluster keys an event belongs to ("genre:x", "artist:y").
func tasteKeys(e *models.RatingEvent) []string {
	genres := e.GenreKeys()
	keys := make([]string, 0, len(genres)+1)
	for _, g := range genres {
		keys = append(keys, tasteKey(models.TasteKindGenre, g))
	}
	if a := e.ArtistKey(); a != "" {
		keys = append(keys, tasteKey(models.TasteKindArtist, a))
	}
	return keys
}

func tasteKey(kind models.TasteKind, name string) string {
	return string(kind) + ":" + name
}

// ComputeConsolidatedTastes computes a trend for every genre and artist cluster
// rated at least MinTasteOccurrences times. The trend compares the cluster's share of
// ratings in the last TrendWindow episodes against the TrendWindow episodes before.
func ComputeConsolidatedTastes(events []models.RatingEvent, episodes []models.Episode, config Config) []models.ConsolidatedTaste {
	if len(events) == 0 {
		return nil
	}

	byID := make(map[string]*models.RatingEvent, len(events))
	counts := make(map[string]int)
	for i := range events {
		e := &events[i]
		byID[e.ID] = e
		for _, k := range tasteKeys(e) {
			counts[k]++
		}
	}

	n := config.TrendWindow
	recentStart := max(len(episodes)-n, 0)
	priorStart := max(recentStart-n, 0)
	recentCounts, recentTotal := windowCounts(episodes[recentStart:], byID)
	priorCounts, priorTotal := windowCounts(episodes[priorStart:recentStart], byID)

	var tastes []models.ConsolidatedTaste
	for key, count := range counts {
		if count < config.MinTasteOccurrences {
			continue
		}
		kind, name := splitTasteKey(key)
		t := models.ConsolidatedTaste{
			Kind:        kind,
			Key:         name,
			Count:       count,
			Share:       float64(count) / float64(len(events)),
			RecentShare: share(recentCounts[key], recentTotal),
			PriorShare:  share(priorCounts[key], priorTotal),
		}
		t.Trend = classifyTrend(t.RecentShare, t.PriorShare, priorTotal > 0, config.TrendThreshold)
		tastes = append(tastes, t)
	}

	sort.Slice(tastes, func(i, j int) bool {
		if tastes[i].Count != tastes[j].Count {
			return tastes[i].Count > tastes[j].Count
		}
		if tastes[i].Kind != tastes[j].Kind {
			return tastes[i].Kind < tastes[j].Kind
		}
		return tastes[i].Key < tastes[j].Key
	})
	return tastes
}

func windowCounts(episodes []models.Episode, byID map[string]*models.RatingEvent) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for _, ep := range episodes {
		for _, id := range ep.MemberEventIDs {
			e, ok := byID[id]
			if !ok {
				continue
			}
			total++
			for _, k := range tasteKeys(e) {
				counts[k]++
			}
		}
	}
	return counts, total
}

func classifyTrend(recent, prior float64, hasPrior bool, threshold float64) models.TasteTrend {
	if !hasPrior {
		return models.TrendStable
	}
	if prior == 0 {
		if recent > 0 {
			return models.TrendStrengthening
		}
		return models.TrendStable
	}
	change := (recent - prior) / prior
	switch {
	case change >= threshold:
		return models.TrendStrengthening
	case change <= -threshold:
		return models.TrendWeakening
	}
	return models.TrendStable
}

func share(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

func splitTasteKey(key string) (models.TasteKind, string) {
	kind, name, _ := strings.Cut(key, ":")
	return models.TasteKind(kind), name
}
