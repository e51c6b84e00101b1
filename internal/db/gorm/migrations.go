package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: rating feed
		{
			ID: "001_rating_events",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RatingEvent{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("rating_events")
			},
		},

		// Migration 002: versioned profile rows with snapshot blobs
		{
			ID: "002_taste_profiles",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&TasteProfile{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("taste_profiles")
			},
		},

		// Migration 003: album lookups for catalog backfills
		{
			ID: "003_rating_events_album_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_ratings_album ON rating_events (album_id)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_ratings_album").Error
			},
		},
	})

	return m.Migrate()
}
