// internal/repository/repository_test.go
package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/licadmin-backend/internal/models"
)

// testDB opens an isolated in-memory database per test. The pool is
// pinned to one connection so every query sees the same memory store.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.License{},
		&models.ExternalLicense{},
		&models.User{},
		&models.SmsPayment{},
	))

	return db
}
