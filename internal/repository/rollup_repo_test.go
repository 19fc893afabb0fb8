package repository

import (
	"context"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

func TestRollupRepository_ApplyHourlyAccumulates(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	apply := func(d models.MetricVector) {
		tx, err := repos.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if err := repos.Rollups.ApplyHourly(ctx, tx, "s1", "2025-01-01", 10, d); err != nil {
			tx.Rollback()
			t.Fatalf("ApplyHourly() error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	apply(models.MetricVector{Sessions: 1, BouncedSessions: 1, Pageviews: 1, Visitors: 1})
	apply(models.MetricVector{Pageviews: 1, BouncedSessions: -1, AvgSessionDurationMs: 600000})

	bucket, err := repos.Rollups.GetHourly(ctx, "s1", "2025-01-01", 10)
	if err != nil {
		t.Fatalf("GetHourly() error = %v", err)
	}
	if bucket.Metrics.Sessions != 1 || bucket.Metrics.Pageviews != 2 || bucket.Metrics.BouncedSessions != 0 {
		t.Fatalf("GetHourly() = %+v, unexpected accumulation", bucket.Metrics)
	}
	if bucket.Metrics.AvgSessionDurationMs != 600000 {
		t.Errorf("AvgSessionDurationMs = %d, want 600000", bucket.Metrics.AvgSessionDurationMs)
	}
}

func TestRollupRepository_TryMarkVisitorSeenOnlyOncePerDay(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	tx, err := repos.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	defer tx.Rollback()

	first, err := repos.Rollups.TryMarkVisitorSeen(ctx, tx, "s1", "2025-01-01", "v1", 1000)
	if err != nil {
		t.Fatalf("TryMarkVisitorSeen() error = %v", err)
	}
	if !first {
		t.Fatal("first TryMarkVisitorSeen() should report inserted=true")
	}

	second, err := repos.Rollups.TryMarkVisitorSeen(ctx, tx, "s1", "2025-01-01", "v1", 2000)
	if err != nil {
		t.Fatalf("TryMarkVisitorSeen() error = %v", err)
	}
	if second {
		t.Fatal("second TryMarkVisitorSeen() same day should report inserted=false")
	}
}

func TestRollupRepository_DeleteRangeClearsAllCubes(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	insertTestSite(t, repos.DB, "s1", "w1", "h1", "example.com")

	tx, err := repos.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := repos.Rollups.ApplyDaily(ctx, tx, "s1", "2025-01-01", models.MetricVector{Sessions: 1}); err != nil {
		t.Fatalf("ApplyDaily() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	tx2, err := repos.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := repos.Rollups.DeleteRange(ctx, tx2, "s1", "2025-01-01", "2025-01-02"); err != nil {
		tx2.Rollback()
		t.Fatalf("DeleteRange() error = %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	bucket, err := repos.Rollups.GetDaily(ctx, "s1", "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if bucket.Metrics.Sessions != 0 {
		t.Errorf("Sessions = %d after DeleteRange, want 0", bucket.Metrics.Sessions)
	}
}
