package db

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/orderflow/configs"
)

// NewTestDB opens a private in-memory sqlite database with the schema migrated.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("failed to connect test database: %v", err)
	}

	if err := Migrate(conn); err != nil {
		t.Fatalf("failed to auto-migrate models: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return conn
}
