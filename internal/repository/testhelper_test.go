package repository

import (
	"database/sql"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing, migrated to
// the current schema. The connection is closed when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// insertTestSite inserts a minimal site row directly, bypassing SiteRepository.
func insertTestSite(t *testing.T, db *sql.DB, id, websiteID, apiKeyHash, domain string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO sites (id, website_id, api_key_hash, domain, timezone, revenue_provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'UTC', 'none', 0, 0)
	`, id, websiteID, apiKeyHash, domain)
	if err != nil {
		t.Fatalf("failed to insert test site: %v", err)
	}
}
