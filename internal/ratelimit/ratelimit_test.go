package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AllowsUpToMaxThenBlocks(t *testing.T) {
	l := NewLimiter(time.Minute, 3)
	now := int64(1_000_000)

	for i := 0; i < 3; i++ {
		ok, wait := l.Allow("ip:1.2.3.4", now+int64(i))
		if !ok {
			t.Fatalf("hit %d: allowed = false, want true (wait=%v)", i, wait)
		}
	}

	ok, wait := l.Allow("ip:1.2.3.4", now+3)
	if ok {
		t.Fatal("4th hit within the window should be blocked")
	}
	if wait <= 0 {
		t.Errorf("retryAfter = %v, want > 0", wait)
	}
}

func TestLimiter_WindowSlidesOpenAgain(t *testing.T) {
	l := NewLimiter(time.Minute, 1)
	now := int64(1_000_000)

	if ok, _ := l.Allow("k", now); !ok {
		t.Fatal("first hit should be allowed")
	}
	if ok, _ := l.Allow("k", now+1000); ok {
		t.Fatal("second hit inside the window should be blocked")
	}
	if ok, _ := l.Allow("k", now+int64(time.Minute/time.Millisecond)+1); !ok {
		t.Fatal("hit after the window elapses should be allowed")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(time.Minute, 1)
	now := int64(1_000_000)
	l.Allow("k", now)

	l.Sweep(now + int64(time.Minute/time.Millisecond) + 1)
	if _, ok := l.hits["k"]; ok {
		t.Fatal("Sweep should have dropped the expired key")
	}
}

func TestSiteIPLimiter_RetryAfterIsTheLargerWindow(t *testing.T) {
	s := NewSiteIPLimiter(time.Minute, 1, 2*time.Minute, 10)
	now := int64(1_000_000)

	if ok, _ := s.Allow("ingest", "site1", "1.2.3.4", now); !ok {
		t.Fatal("first request should be allowed")
	}

	ok, wait := s.Allow("ingest", "site1", "1.2.3.4", now+1000)
	if ok {
		t.Fatal("second request should be blocked by the per-IP window")
	}
	maxWait := time.Minute
	if wait <= 0 || wait > maxWait {
		t.Errorf("retryAfter = %v, want in (0, %v]", wait, maxWait)
	}
}

func TestSiteIPLimiter_SiteWindowAlsoEnforced(t *testing.T) {
	s := NewSiteIPLimiter(time.Minute, 100, time.Minute, 1)
	now := int64(1_000_000)

	if ok, _ := s.Allow("ingest", "site1", "1.2.3.4", now); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := s.Allow("ingest", "site1", "5.6.7.8", now+1000); ok {
		t.Fatal("a different IP against the same site should still be blocked by the site window")
	}
}
