// Package testutil wires an isolated read model for tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/database"
)

// NewDB opens a migrated sqlite database that lives for the duration of t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), database.GormConfig("silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

// Address returns a deterministic lowercase account address for n.
func Address(n int) string {
	return strings.ToLower(fmt.Sprintf("0x%040x", n))
}
