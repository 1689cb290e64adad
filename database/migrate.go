package database

import (
	"fmt"

	"newsletter-backend/models"

	"gorm.io/gorm"
)

// AutoMigrate applies (idempotent) schema migrations:
// - AutoMigrate for tables/columns/index tags
// - composite primary keys come from the gorm tags on the models
// - a partial index that speeds up the worker's ready-row scan
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.NewsletterIssue{},
		&models.DeliveryTask{},
		&models.IdempotencyRecord{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	// The dequeue query is ORDER BY next_retry with a <= now() filter; a plain
	// btree index on next_retry covers it on every supported dialect.
	if err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_issue_delivery_queue_next_retry ON issue_delivery_queue (next_retry)`,
	).Error; err != nil {
		return fmt.Errorf("index migration failed: %w", err)
	}

	return nil
}
