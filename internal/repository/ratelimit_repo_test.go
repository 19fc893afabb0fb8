package repository

import (
	"context"
	"testing"
)

func TestRateLimitRepository_IsSuspendedDefaultsFalse(t *testing.T) {
	repos := setupTestRepos(t)
	suspended, err := repos.RateLimit.IsSuspended(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("IsSuspended() error = %v", err)
	}
	if suspended {
		t.Fatal("IsSuspended() = true for a key never rate limited, want false")
	}
}

func TestRateLimitRepository_MarkRateLimitedSuspendsAndBacksOff(t *testing.T) {
	repos := setupTestRepos(t)

	backoff1, err := repos.RateLimit.MarkRateLimited(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("MarkRateLimited() error = %v", err)
	}
	if backoff1 <= 0 {
		t.Fatalf("backoff1 = %v, want > 0", backoff1)
	}

	suspended, err := repos.RateLimit.IsSuspended(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("IsSuspended() error = %v", err)
	}
	if !suspended {
		t.Fatal("IsSuspended() = false immediately after MarkRateLimited, want true")
	}

	backoff2, err := repos.RateLimit.MarkRateLimited(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("second MarkRateLimited() error = %v", err)
	}
	if backoff2 <= backoff1 {
		t.Errorf("backoff2 = %v, want > backoff1 = %v (exponential backoff)", backoff2, backoff1)
	}
}

func TestRateLimitRepository_ClearSuspension(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if _, err := repos.RateLimit.MarkRateLimited(ctx, "key-1"); err != nil {
		t.Fatalf("MarkRateLimited() error = %v", err)
	}
	if err := repos.RateLimit.ClearSuspension(ctx, "key-1"); err != nil {
		t.Fatalf("ClearSuspension() error = %v", err)
	}

	suspended, err := repos.RateLimit.IsSuspended(ctx, "key-1")
	if err != nil {
		t.Fatalf("IsSuspended() error = %v", err)
	}
	if suspended {
		t.Fatal("IsSuspended() = true after ClearSuspension, want false")
	}
}

func TestRateLimitRepository_GetStats(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if _, err := repos.RateLimit.MarkRateLimited(ctx, "key-1"); err != nil {
		t.Fatalf("MarkRateLimited() error = %v", err)
	}
	if _, err := repos.RateLimit.MarkRateLimited(ctx, "key-2"); err != nil {
		t.Fatalf("MarkRateLimited() error = %v", err)
	}

	stats, err := repos.RateLimit.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("TotalEntries = %d, want 2", stats.TotalEntries)
	}
	if stats.ActiveSuspensions != 2 {
		t.Errorf("ActiveSuspensions = %d, want 2", stats.ActiveSuspensions)
	}
}
