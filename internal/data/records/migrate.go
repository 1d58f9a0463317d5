package records

import (
	"gorm.io/gorm"
)

// AutoMigrateAll creates or updates the schema for every entity table.
// Join tables (action_event_reviews, action_event_reviewables,
// action_opt_ratings, reviewable_reviews) are derived from the
// many2many tags.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&Episode{},
		&ActionEvent{},
		&Review{},
		&Rating{},
		&Reviewable{},
		&ActionOpt{},
	)
}
