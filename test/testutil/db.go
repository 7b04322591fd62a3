package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/db"
)

// OpenTestDB connects to the postgres instance named by TEST_DB_HOST and
// skips the test when it is not set.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Driver:   db.DriverPostgres,
		Host:     host,
		Port:     5432,
		User:     "classmate",
		Password: "classmate_pass",
		DBName:   "classmate_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn, db.DriverPostgres); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// OpenSQLiteDB returns a migrated sqlite database in a temp dir.
func OpenSQLiteDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "classmate.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn, db.DriverSQLite); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}
