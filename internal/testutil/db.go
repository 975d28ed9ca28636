// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/arnold/steady-api/internal/config"
	"github.com/arnold/steady-api/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewDB opens a migrated, private in-memory SQLite database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &config.Config{DatabaseURL: "file:" + uuid.NewString() + "?mode=memory&cache=shared"}
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
