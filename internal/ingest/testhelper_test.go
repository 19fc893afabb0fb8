package ingest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/database/migrations"
	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

func setupTestRepos(t *testing.T) *repository.Repositories {
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
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewRepositories(db)
}

func insertTestSite(t *testing.T, repos *repository.Repositories, id, domain string) *models.Site {
	t.Helper()
	site := &models.Site{
		ID: id, WebsiteID: id + "_web", APIKeyHash: id + "_hash", Domain: domain,
		Timezone: "UTC", RevenueProvider: models.RevenueProviderNone,
	}
	if err := repos.Sites.Create(context.Background(), site); err != nil {
		t.Fatalf("failed to insert test site: %v", err)
	}
	return site
}
