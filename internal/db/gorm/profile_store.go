package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/thebtf/tasteid/internal/tasteid"
	"github.com/thebtf/tasteid/pkg/models"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// ProfileStore persists versioned profile rows.
type ProfileStore struct {
	store *Store
	db    *gorm.DB
}

// NewProfileStore creates a new profile store.
func NewProfileStore(store *Store) *ProfileStore {
	return &ProfileStore{store: store, db: store.DB}
}

// GetProfile returns the profile of userID, or nil when none was computed yet.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "get_profile")
	defer cancel()

	var row TasteProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return row.toModel(), nil
}

// SaveProfile writes profile if the stored version still equals expectedVersion.
// expectedVersion 0 inserts a new row. A lost race returns an error wrapping
// tasteid.ErrConflict and leaves the stored row untouched.
func (s *ProfileStore) SaveProfile(ctx context.Context, profile *models.Profile, expectedVersion int64) error {
	ctx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "save_profile")
	defer cancel()

	row := profileFromModel(profile)
	if expectedVersion == 0 {
		err := s.db.WithContext(ctx).Create(&row).Error
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: profile %s was created concurrently", tasteid.ErrConflict, profile.UserID)
		}
		if err != nil {
			return fmt.Errorf("create profile %s: %w", profile.UserID, err)
		}
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&TasteProfile{}).
		Where("user_id = ? AND version = ?", profile.UserID, expectedVersion).
		Select("*").
		Omit("user_id").
		Updates(&row)
	if result.Error != nil {
		return fmt.Errorf("update profile %s: %w", profile.UserID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: profile %s is no longer at version %d", tasteid.ErrConflict, profile.UserID, expectedVersion)
	}
	return nil
}

// DeleteProfile removes the profile of userID. The next recompute starts cold.
func (s *ProfileStore) DeleteProfile(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&TasteProfile{}).Error
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}

// isUniqueViolation reports duplicate-key errors from either backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
