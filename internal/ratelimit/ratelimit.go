// Package ratelimit implements half of C9: in-process sliding-window rate
// limiting keyed by (scope, ip) and (scope, siteId). go-chi/httprate covers
// the coarse per-IP flood protection at the router edge (wired in
// internal/httpapi); this package implements the finer two-window rule httprate's
// public API does not expose — comparing an IP window against a site window
// and returning the larger remaining wait.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a single sliding window: at most max hits per key within
// window. One process-wide instance is shared across all keys sharing that
// window's granularity (per-IP, per-site).
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]int64
}

// NewLimiter constructs a Limiter allowing at most max hits per key in any
// rolling window of the given duration.
func NewLimiter(window time.Duration, max int) *Limiter {
	return &Limiter{window: window, max: max, hits: make(map[string][]int64)}
}

// Allow records a hit for key at nowMs (epoch-ms) and reports whether it
// falls within the window's max. If not allowed, retryAfter is the time
// until the oldest hit in the window ages out and a slot frees up.
func (l *Limiter) Allow(key string, nowMs int64) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := nowMs - l.window.Milliseconds()
	kept := l.hits[key][:0]
	for _, h := range l.hits[key] {
		if h > cutoff {
			kept = append(kept, h)
		}
	}

	if len(kept) >= l.max {
		oldest := kept[0]
		wait := oldest + l.window.Milliseconds() - nowMs
		if wait < 0 {
			wait = 0
		}
		l.hits[key] = kept
		return false, time.Duration(wait) * time.Millisecond
	}

	kept = append(kept, nowMs)
	l.hits[key] = kept
	return true, 0
}

// Sweep drops tracked keys with no hits left inside the window as of nowMs,
// bounding the map's memory growth. Intended to be called periodically from
// a background goroutine, not from the request path.
func (l *Limiter) Sweep(nowMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := nowMs - l.window.Milliseconds()
	for key, hits := range l.hits {
		kept := hits[:0]
		for _, h := range hits {
			if h > cutoff {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = kept
		}
	}
}

// SiteIPLimiter enforces the §4.9 two-window rule: a request must pass both
// a per-IP and a per-site sliding window for the same logical scope.
type SiteIPLimiter struct {
	byIP   *Limiter
	bySite *Limiter
}

// NewSiteIPLimiter constructs a SiteIPLimiter from independent IP and site
// window/max settings.
func NewSiteIPLimiter(ipWindow time.Duration, ipMax int, siteWindow time.Duration, siteMax int) *SiteIPLimiter {
	return &SiteIPLimiter{
		byIP:   NewLimiter(ipWindow, ipMax),
		bySite: NewLimiter(siteWindow, siteMax),
	}
}

// Allow checks both windows for (scope, ip) and (scope, siteId). If either
// is exhausted, allowed is false and retryAfter is the larger of the two
// remaining waits, per §4.9.
func (s *SiteIPLimiter) Allow(scope, siteID, ip string, nowMs int64) (allowed bool, retryAfter time.Duration) {
	okIP, waitIP := s.byIP.Allow(scope+"|ip|"+ip, nowMs)
	okSite, waitSite := s.bySite.Allow(scope+"|site|"+siteID, nowMs)
	if okIP && okSite {
		return true, 0
	}
	retryAfter = waitIP
	if waitSite > retryAfter {
		retryAfter = waitSite
	}
	return false, retryAfter
}

// Sweep sweeps both underlying limiters.
func (s *SiteIPLimiter) Sweep(nowMs int64) {
	s.byIP.Sweep(nowMs)
	s.bySite.Sweep(nowMs)
}
