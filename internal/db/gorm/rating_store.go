package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/tasteid/pkg/models"
)

// RatingStore reads the ordered rating feed. Imports go through UpsertRatings;
// the engine itself only reads.
type RatingStore struct {
	store *Store
	db    *gorm.DB
}

// NewRatingStore creates a new rating store.
func NewRatingStore(store *Store) *RatingStore {
	return &RatingStore{store: store, db: store.DB}
}

// ListRatings returns every rating of userID ordered by CreatedAt, then ID.
func (s *RatingStore) ListRatings(ctx context.Context, userID string) ([]models.RatingEvent, error) {
	ctx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "list_ratings")
	defer cancel()

	var rows []RatingEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list ratings for %s: %w", userID, err)
	}

	events := make([]models.RatingEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].toModel()
	}
	return events, nil
}

// CountRatings returns how many ratings userID has.
func (s *RatingStore) CountRatings(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RatingEvent{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count ratings for %s: %w", userID, err)
	}
	return count, nil
}

// UpsertRatings inserts events, replacing stored events with the same ID. A stored
// event is only replaced by its owner; a conflicting ID from another user is ignored.
func (s *RatingStore) UpsertRatings(ctx context.Context, events []models.RatingEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]RatingEvent, len(events))
	for i := range events {
		rows[i] = ratingFromModel(&events[i])
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "rating_events.user_id = excluded.user_id"},
			}},
			DoUpdates: clause.AssignmentColumns([]string{"album_id", "artist_name", "vibes", "album_genres", "rating", "release_year", "created_at"}),
		}).
		CreateInBatches(rows, 500).Error
}
