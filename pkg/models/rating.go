// Package models contains domain models for the taste-modeling engine.
package models

import (
	"sort"
	"strings"
	"time"
)

// RatingEvent is one album rating from the review store. It is immutable input:
// the engine never mutates events it is handed.
type RatingEvent struct {
	CreatedAt   time.Time `json:"created_at" validate:"required"`
	ID          string    `json:"id" validate:"required"`
	UserID      string    `json:"user_id,omitempty"`
	AlbumID     string    `json:"album_id" validate:"required"`
	ArtistName  string    `json:"artist_name,omitempty"`
	Vibes       []string  `json:"vibes,omitempty" validate:"dive,required"`
	AlbumGenres []string  `json:"album_genres,omitempty" validate:"dive,required"`
	Rating      float64   `json:"rating" validate:"gte=0,lte=10"`
	ReleaseYear int       `json:"release_year,omitempty" validate:"gte=0"`
}

// ArtistKey returns the normalized artist name used for grouping.
func (e *RatingEvent) ArtistKey() string {
	return normalizeKey(e.ArtistName)
}

// GenreKeys returns the normalized, de-duplicated album genres.
func (e *RatingEvent) GenreKeys() []string {
	return normalizeKeys(e.AlbumGenres)
}

// VibeKeys returns the normalized, de-duplicated vibe tags.
func (e *RatingEvent) VibeKeys() []string {
	return normalizeKeys(e.Vibes)
}

// SortEvents returns a copy of events ordered by CreatedAt ascending.
// Ties are broken by ID so the order is deterministic.
func SortEvents(events []RatingEvent) []RatingEvent {
	sorted := make([]RatingEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// DedupeEvents drops repeated ids from events ordered by SortEvents, keeping the
// last occurrence of each id.
func DedupeEvents(events []RatingEvent) []RatingEvent {
	last := make(map[string]int, len(events))
	for i := range events {
		last[events[i].ID] = i
	}
	if len(last) == len(events) {
		return events
	}
	out := make([]RatingEvent, 0, len(last))
	for i := range events {
		if last[events[i].ID] == i {
			out = append(out, events[i])
		}
	}
	return out
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeKeys(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		k := normalizeKey(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, k)
	}
	return result
}
