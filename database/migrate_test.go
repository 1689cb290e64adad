package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestAutoMigrateCreatesAllTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate_test?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{
		"users",
		"subscriptions",
		"newsletter_issues",
		"issue_delivery_queue",
		"idempotency",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	// Running it again must be a no-op, not an error.
	require.NoError(t, AutoMigrate(db))
}
