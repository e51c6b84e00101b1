package consolidation

import (
	"time"

	"github.com/thebtf/tasteid/pkg/models"
)

// ExtractEpisodes segments an ordered history into episodes. A new episode starts
// when the gap to the previous rating exceeds the inactivity threshold, or when a
// rating's genres share nothing with the last DiscontinuityWindow genre-tagged
// ratings of the running episode. Every event lands in exactly one episode.
func ExtractEpisodes(events []models.RatingEvent, config Config) []models.Episode {
	if len(events) == 0 {
		return nil
	}

	gap := time.Duration(config.InactivityGapHours) * time.Hour
	var episodes []models.Episode
	var members []models.RatingEvent
	var window [][]string

	for i := range events {
		ev := events[i]
		genres := ev.GenreKeys()

		if len(members) > 0 {
			prev := members[len(members)-1]
			boundary := ev.CreatedAt.Sub(prev.CreatedAt) > gap
			if !boundary && config.DiscontinuityWindow > 0 && len(window) >= config.DiscontinuityWindow && len(genres) > 0 {
				boundary = !sharesAny(genres, window)
			}
			if boundary {
				episodes = append(episodes, buildEpisode(members, config.DominantN))
				members, window = nil, nil
			}
		}

		members = append(members, ev)
		if len(genres) == 0 {
			continue
		}
		window = append(window, genres)
		if config.DiscontinuityWindow > 0 && len(window) > config.DiscontinuityWindow {
			window = window[len(window)-config.DiscontinuityWindow:]
		}
	}
	return append(episodes, buildEpisode(members, config.DominantN))
}

func buildEpisode(members []models.RatingEvent, dominantN int) models.Episode {
	ep := models.Episode{
		ID:             "ep-" + members[0].ID,
		StartAt:        members[0].CreatedAt,
		EndAt:          members[len(members)-1].CreatedAt,
		MemberEventIDs: make([]string, 0, len(members)),
	}

	genres := make(map[string]int)
	artists := make(map[string]int)
	total := 0.0
	for i := range members {
		m := &members[i]
		ep.MemberEventIDs = append(ep.MemberEventIDs, m.ID)
		total += m.Rating
		for _, g := range m.GenreKeys() {
			genres[g]++
		}
		if a := m.ArtistKey(); a != "" {
			artists[a]++
		}
	}
	ep.AverageRating = total / float64(len(members))
	ep.DominantGenres = names(models.RankEntries(genres, dominantN))
	ep.DominantArtists = names(models.RankEntries(artists, dominantN))
	return ep
}

func sharesAny(genres []string, window [][]string) bool {
	for _, set := range window {
		for _, g := range set {
			for _, candidate := range genres {
				if g == candidate {
					return true
				}
			}
		}
	}
	return false
}

func names(entries []models.RankedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
