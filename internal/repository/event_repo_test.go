package repository

import (
	"context"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

func insertEvent(t *testing.T, repos *Repositories, ctx context.Context, e *models.RawEvent) bool {
	t.Helper()
	tx, err := repos.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	deduped, err := repos.Events.InsertEvent(ctx, tx, e)
	if err != nil {
		tx.Rollback()
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return deduped
}

func TestEventRepository_InsertAndDedup(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	e := &models.RawEvent{
		ID: "evt_1", SiteID: "s1", EventID: "client-1", Type: models.EventTypePageview,
		VisitorID: "v1", SessionID: "sess1", Timestamp: 1000,
		Metadata: map[string]any{}, Normalized: map[string]any{}, CreatedAt: 1000,
	}
	if deduped := insertEvent(t, repos, ctx, e); deduped {
		t.Fatal("first insert reported deduped=true")
	}

	e2 := *e
	e2.ID = "evt_2"
	if deduped := insertEvent(t, repos, ctx, &e2); !deduped {
		t.Fatal("replaying the same (siteId, eventId) should dedupe")
	}
}

func TestEventRepository_FindLatestPageview(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	insertEvent(t, repos, ctx, &models.RawEvent{
		ID: "evt_1", SiteID: "s1", Type: models.EventTypePageview, VisitorID: "v1",
		Timestamp: 1000, Metadata: map[string]any{}, Normalized: map[string]any{}, CreatedAt: 1000,
	})
	insertEvent(t, repos, ctx, &models.RawEvent{
		ID: "evt_2", SiteID: "s1", Type: models.EventTypePageview, VisitorID: "v1",
		Timestamp: 2000, Metadata: map[string]any{}, Normalized: map[string]any{}, CreatedAt: 2000,
	})

	latest, err := repos.Events.FindLatestPageview(ctx, "s1", "v1")
	if err != nil {
		t.Fatalf("FindLatestPageview() error = %v", err)
	}
	if latest == nil || latest.ID != "evt_2" {
		t.Fatalf("FindLatestPageview() = %+v, want evt_2", latest)
	}
}

func TestEventRepository_FindLatestPageviewNone(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	latest, err := repos.Events.FindLatestPageview(ctx, "s1", "unseen")
	if err != nil {
		t.Fatalf("FindLatestPageview() error = %v", err)
	}
	if latest != nil {
		t.Fatalf("FindLatestPageview() = %+v, want nil", latest)
	}
}

func TestEventRepository_StreamRangeOrdering(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	insertEvent(t, repos, ctx, &models.RawEvent{
		ID: "evt_b", SiteID: "s1", Type: models.EventTypePageview, VisitorID: "v1",
		Timestamp: 2000, Metadata: map[string]any{}, Normalized: map[string]any{}, CreatedAt: 2000,
	})
	insertEvent(t, repos, ctx, &models.RawEvent{
		ID: "evt_a", SiteID: "s1", Type: models.EventTypePageview, VisitorID: "v1",
		Timestamp: 1000, Metadata: map[string]any{}, Normalized: map[string]any{}, CreatedAt: 1000,
	})

	var seen []string
	err := repos.Events.StreamRange(ctx, "", 0, 10000, func(e models.RawEvent) error {
		seen = append(seen, e.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamRange() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != "evt_a" || seen[1] != "evt_b" {
		t.Fatalf("StreamRange() order = %v, want [evt_a evt_b]", seen)
	}
}
