// Package dbtest opens throwaway in-memory databases for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gocampus/internal/dbmysql"
)

// Open returns a migrated SQLite database private to t.
// One connection keeps the in-memory database alive and serializes transactions.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, dbmysql.Migrate(db))
	require.NoError(t, db.AutoMigrate(&dbmysql.User{}))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedUsers inserts profile rows normally owned by the profile service.
func SeedUsers(t testing.TB, db *gorm.DB, users ...dbmysql.User) {
	t.Helper()
	for i := range users {
		require.NoError(t, db.Create(&users[i]).Error)
	}
}
