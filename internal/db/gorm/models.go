package gorm

import (
	"time"

	"github.com/thebtf/tasteid/pkg/models"
)

// RatingEvent is a stored album rating.
// Field order optimized for memory alignment (fieldalignment).
type RatingEvent struct {
	CreatedAt   time.Time              `gorm:"not null;index:idx_ratings_user_created,priority:2"`
	ID          string                 `gorm:"primaryKey;type:varchar(64)"`
	UserID      string                 `gorm:"type:varchar(64);not null;index:idx_ratings_user_created,priority:1"`
	AlbumID     string                 `gorm:"type:varchar(64);not null"`
	ArtistName  string                 `gorm:"type:text"`
	Vibes       models.JSONStringArray `gorm:"type:text"`
	AlbumGenres models.JSONStringArray `gorm:"type:text"`
	Rating      float64                `gorm:"not null;check:chk_ratings_range,rating >= 0 AND rating <= 10"`
	ReleaseYear int                    `gorm:"default:0"`
}

func (RatingEvent) TableName() string { return "rating_events" }

func ratingFromModel(e *models.RatingEvent) RatingEvent {
	return RatingEvent{
		ID:          e.ID,
		UserID:      e.UserID,
		AlbumID:     e.AlbumID,
		ArtistName:  e.ArtistName,
		Vibes:       e.Vibes,
		AlbumGenres: e.AlbumGenres,
		Rating:      e.Rating,
		ReleaseYear: e.ReleaseYear,
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

func (r *RatingEvent) toModel() models.RatingEvent {
	return models.RatingEvent{
		ID:          r.ID,
		UserID:      r.UserID,
		AlbumID:     r.AlbumID,
		ArtistName:  r.ArtistName,
		Vibes:       r.Vibes,
		AlbumGenres: r.AlbumGenres,
		Rating:      r.Rating,
		ReleaseYear: r.ReleaseYear,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// TasteProfile is the primary profile row: signature output as flat columns plus
// the four snapshot blobs.
type TasteProfile struct {
	ComputedAt          time.Time `gorm:"not null;index"`
	FirstRatedAt        time.Time
	LastRatedAt         time.Time
	UserID              string                    `gorm:"primaryKey;type:varchar(64)"`
	RunID               string                    `gorm:"type:varchar(36);not null"`
	PrimaryArchetype    string                    `gorm:"type:varchar(32);index"`
	SecondaryArchetype  string                    `gorm:"type:varchar(32)"`
	RatingSkew          string                    `gorm:"type:varchar(16)"`
	TopGenres           models.JSONRankedEntries  `gorm:"type:text"`
	TopArtists          models.JSONRankedEntries  `gorm:"type:text"`
	PatternState        string                    `gorm:"type:text"`
	CognitiveGraph      string                    `gorm:"type:text"`
	EpisodeHistory      string                    `gorm:"type:text"`
	DriftState          string                    `gorm:"type:text"`
	Signature           models.ListeningSignature `gorm:"embedded;embeddedPrefix:sig_"`
	RawSignature        models.ListeningSignature `gorm:"embedded;embeddedPrefix:raw_"`
	ArchetypeConfidence float64
	AdventurenessScore  float64
	PolarityScore       float64
	RatingAverage       float64
	RatingStdDev        float64
	Version             int64 `gorm:"not null;default:1"`
	RatingCount         int
	DistinctArtists     int
	DistinctGenres      int
}

func (TasteProfile) TableName() string { return "taste_profiles" }

func profileFromModel(p *models.Profile) TasteProfile {
	return TasteProfile{
		UserID:              p.UserID,
		RunID:               p.RunID,
		ComputedAt:          p.ComputedAt.UTC(),
		Version:             p.Version,
		PrimaryArchetype:    string(p.Archetype.Primary),
		SecondaryArchetype:  string(p.Archetype.Secondary),
		ArchetypeConfidence: p.Archetype.Confidence,
		AdventurenessScore:  p.Archetype.AdventurenessScore,
		PolarityScore:       p.Archetype.PolarityScore,
		RatingAverage:       p.RatingStyle.Average,
		RatingStdDev:        p.RatingStyle.StdDev,
		RatingSkew:          string(p.RatingStyle.Skew),
		Signature:           p.Signature,
		RawSignature:        p.RawSignature,
		RatingCount:         p.Stats.RatingCount,
		DistinctArtists:     p.Stats.DistinctArtists,
		DistinctGenres:      p.Stats.DistinctGenres,
		FirstRatedAt:        p.Stats.FirstRatedAt.UTC(),
		LastRatedAt:         p.Stats.LastRatedAt.UTC(),
		TopGenres:           p.Stats.TopGenres,
		TopArtists:          p.Stats.TopArtists,
		PatternState:        string(p.Snapshot.PatternState),
		CognitiveGraph:      string(p.Snapshot.CognitiveGraph),
		EpisodeHistory:      string(p.Snapshot.EpisodeHistory),
		DriftState:          string(p.Snapshot.DriftState),
	}
}

func (t *TasteProfile) toModel() *models.Profile {
	return &models.Profile{
		UserID:     t.UserID,
		RunID:      t.RunID,
		ComputedAt: t.ComputedAt.UTC(),
		Version:    t.Version,
		Archetype: models.ArchetypeResult{
			Primary:            models.ArchetypeID(t.PrimaryArchetype),
			Secondary:          models.ArchetypeID(t.SecondaryArchetype),
			Confidence:         t.ArchetypeConfidence,
			AdventurenessScore: t.AdventurenessScore,
			PolarityScore:      t.PolarityScore,
			TopGenres:          rankedNames(t.TopGenres),
			TopArtists:         rankedNames(t.TopArtists),
		},
		RatingStyle: models.RatingStyle{
			Average: t.RatingAverage,
			StdDev:  t.RatingStdDev,
			Skew:    models.RatingSkew(t.RatingSkew),
		},
		Signature:    t.Signature,
		RawSignature: t.RawSignature,
		Stats: models.TasteStats{
			RatingCount:     t.RatingCount,
			DistinctArtists: t.DistinctArtists,
			DistinctGenres:  t.DistinctGenres,
			FirstRatedAt:    t.FirstRatedAt.UTC(),
			LastRatedAt:     t.LastRatedAt.UTC(),
			TopGenres:       t.TopGenres,
			TopArtists:      t.TopArtists,
		},
		Snapshot: models.Snapshot{
			PatternState:   blob(t.PatternState),
			CognitiveGraph: blob(t.CognitiveGraph),
			EpisodeHistory: blob(t.EpisodeHistory),
			DriftState:     blob(t.DriftState),
		},
	}
}

func blob(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func rankedNames(entries []models.RankedEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
