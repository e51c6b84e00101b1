package consolidation

import (
	"github.com/thebtf/tasteid/internal/graph"
	"github.com/thebtf/tasteid/pkg/models"
)

// continuation is the association strength between consecutive episodes: the
// Jaccard similarity of their dominant genres, falling back to dominant artists
// when neither episode has genres.
func continuation(prev, next models.Episode) float64 {
	if len(prev.DominantGenres) > 0 || len(next.DominantGenres) > 0 {
		return graph.Jaccard(prev.DominantGenres, next.DominantGenres)
	}
	return graph.Jaccard(prev.DominantArtists, next.DominantArtists)
}

// exhibitStrength is the share of a target's events that support a pattern, scaled
// by the pattern's confidence.
func exhibitStrength(supporting, total int, confidence float64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(supporting) / float64(total) * confidence
}
