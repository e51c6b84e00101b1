// Package testutil builds rating histories for tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/thebtf/tasteid/pkg/models"
)

// Epoch is the fixed start time used by generated histories.
var Epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// Event creates a rating event for user "u1".
func Event(id string, at time.Time, artist string, rating float64, genres ...string) models.RatingEvent {
	return models.RatingEvent{
		ID:          id,
		UserID:      "u1",
		AlbumID:     "album-" + id,
		ArtistName:  artist,
		Rating:      rating,
		AlbumGenres: genres,
		CreatedAt:   at,
	}
}

// OscillatingHistory returns n events spread evenly over span that alternate
// between a small set of familiar artists and an artist never seen before.
func OscillatingHistory(n int, span time.Duration) []models.RatingEvent {
	familiar := []string{"Radiohead", "Bjork", "Portishead"}
	step := span / time.Duration(max(n-1, 1))
	events := make([]models.RatingEvent, 0, n)
	for i := 0; i < n; i++ {
		at := Epoch.Add(time.Duration(i) * step)
		id := fmt.Sprintf("e%03d", i)
		if i%2 == 0 {
			events = append(events, Event(id, at, familiar[(i/2)%len(familiar)], 7, "art rock"))
		} else {
			events = append(events, Event(id, at, fmt.Sprintf("New Artist %d", i), 6.5, "indie"))
		}
	}
	return events
}

// SingleArtistHistory returns n events for one artist, one per day, all rated the same.
func SingleArtistHistory(n int, artist string, rating float64) []models.RatingEvent {
	events := make([]models.RatingEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event(fmt.Sprintf("s%03d", i), Epoch.Add(time.Duration(i)*24*time.Hour), artist, rating, "rock"))
	}
	return events
}

// Append returns events followed by n more single-artist events starting one
// day after the last event.
func Append(events []models.RatingEvent, n int, artist string, rating float64, genres ...string) []models.RatingEvent {
	start := Epoch
	if len(events) > 0 {
		start = events[len(events)-1].CreatedAt
	}
	out := append([]models.RatingEvent(nil), events...)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("a%03d-%03d", len(events), i)
		out = append(out, Event(id, start.Add(time.Duration(i+1)*24*time.Hour), artist, rating, genres...))
	}
	return out
}
