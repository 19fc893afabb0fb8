package repository

import (
	"context"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

func TestSiteRepository_CreateAndLookup(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	site := &models.Site{
		ID:              "site_1",
		WebsiteID:       "web_1",
		APIKeyHash:      "hash_1",
		Domain:          "example.com",
		Timezone:        "UTC",
		RevenueProvider: models.RevenueProviderStripe,
		CreatedAt:       1000,
		UpdatedAt:       1000,
	}
	if err := repos.Sites.Create(ctx, site); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byID, err := repos.Sites.GetByID(ctx, "site_1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Domain != "example.com" {
		t.Errorf("Domain = %q, want %q", byID.Domain, "example.com")
	}

	byWebsiteID, err := repos.Sites.GetByWebsiteID(ctx, "web_1")
	if err != nil {
		t.Fatalf("GetByWebsiteID() error = %v", err)
	}
	if byWebsiteID.ID != "site_1" {
		t.Errorf("ID = %q, want %q", byWebsiteID.ID, "site_1")
	}

	byHash, err := repos.Sites.GetByAPIKeyHash(ctx, "hash_1")
	if err != nil {
		t.Fatalf("GetByAPIKeyHash() error = %v", err)
	}
	if byHash.ID != "site_1" {
		t.Errorf("ID = %q, want %q", byHash.ID, "site_1")
	}
}

func TestSiteRepository_NotFound(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if _, err := repos.Sites.GetByID(ctx, "missing"); err != ErrSiteNotFound {
		t.Errorf("GetByID() error = %v, want ErrSiteNotFound", err)
	}
}
