package normalize

import (
	"net/http"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/validate"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/blog/post", "/blog/post"},
		{"", "/"},
		{"https://example.com/blog?a=1", "/blog?a=1"},
		{"/blog?utm_source=x", "/blog?utm_source=x"},
	}
	for _, c := range cases {
		if got := normalizePath(c.in); got != c.want {
			t.Errorf("normalizePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeReferrer(t *testing.T) {
	ref, domain := normalizeReferrer("https://www.google.com/search?q=x")
	if ref != "https://www.google.com/search" {
		t.Errorf("referrer = %q, want %q", ref, "https://www.google.com/search")
	}
	if domain != "www.google.com" {
		t.Errorf("domain = %q, want %q", domain, "www.google.com")
	}

	ref2, domain2 := normalizeReferrer("")
	if ref2 != "" || domain2 != "" {
		t.Errorf("empty referrer should normalize to empty, got %q / %q", ref2, domain2)
	}
}

func TestReconcileTimestamp_PastRejected(t *testing.T) {
	now := int64(2_000_000_000_000)
	raw := float64(now - validate.MaxBackfillMs - 1)
	_, _, _, err := reconcileTimestamp(&raw, now)
	if err == nil {
		t.Fatal("reconcileTimestamp() error = nil, want past rejection")
	}
	if rej, ok := err.(*TimestampRejected); !ok || rej.Reason != "past" {
		t.Errorf("err = %v, want TimestampRejected{past}", err)
	}
}

func TestReconcileTimestamp_FutureRejected(t *testing.T) {
	now := int64(2_000_000_000_000)
	raw := float64(now + validate.MaxClientTSSkewMs + 1)
	_, _, _, err := reconcileTimestamp(&raw, now)
	if err == nil {
		t.Fatal("reconcileTimestamp() error = nil, want future rejection")
	}
	if rej, ok := err.(*TimestampRejected); !ok || rej.Reason != "future" {
		t.Errorf("err = %v, want TimestampRejected{future}", err)
	}
}

func TestReconcileTimestamp_SmallForwardSkewClampsToServer(t *testing.T) {
	now := int64(2_000_000_000_000)
	raw := float64(now + 1000)
	ts, usedClient, _, err := reconcileTimestamp(&raw, now)
	if err != nil {
		t.Fatalf("reconcileTimestamp() error = %v", err)
	}
	if ts != now || usedClient {
		t.Errorf("ts=%d usedClient=%v, want ts=%d usedClient=false", ts, usedClient, now)
	}
}

func TestReconcileTimestamp_WithinWindowUsesClient(t *testing.T) {
	now := int64(2_000_000_000_000)
	raw := float64(now - 60_000)
	ts, usedClient, _, err := reconcileTimestamp(&raw, now)
	if err != nil {
		t.Fatalf("reconcileTimestamp() error = %v", err)
	}
	if ts != now-60_000 || !usedClient {
		t.Errorf("ts=%d usedClient=%v, want ts=%d usedClient=true", ts, usedClient, now-60_000)
	}
}

func TestReconcileTimestamp_AbsentUsesServerNow(t *testing.T) {
	now := int64(2_000_000_000_000)
	ts, usedClient, skew, err := reconcileTimestamp(nil, now)
	if err != nil {
		t.Fatalf("reconcileTimestamp() error = %v", err)
	}
	if ts != now || usedClient || skew != 0 {
		t.Errorf("ts=%d usedClient=%v skew=%d, want ts=%d usedClient=false skew=0", ts, usedClient, skew, now)
	}
}

func TestParseUA_ChromeDesktop(t *testing.T) {
	ua := ParseUA("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if ua.Browser != "chrome" {
		t.Errorf("Browser = %q, want chrome", ua.Browser)
	}
	if ua.Device != "desktop" {
		t.Errorf("Device = %q, want desktop", ua.Device)
	}
	if ua.OS != "windows" {
		t.Errorf("OS = %q, want windows", ua.OS)
	}
}

func TestParseUA_EmptyUA(t *testing.T) {
	ua := ParseUA("")
	if ua.Browser != "unknown" {
		t.Errorf("Browser = %q, want unknown", ua.Browser)
	}
}

func TestGeoResolver_ProviderHeadersTakePrecedence(t *testing.T) {
	g := NewGeoResolver("")
	h := http.Header{}
	h.Set("cf-ipcountry", "us")
	h.Set("cf-ipcity", "unknown")
	res := g.Resolve(h, "203.0.113.1")
	if res.Country != "US" {
		t.Errorf("Country = %q, want US", res.Country)
	}
	if res.City != "" {
		t.Errorf("City = %q, want empty for literal unknown", res.City)
	}
}

func TestGeoResolver_NoHeadersNoDBReturnsEmpty(t *testing.T) {
	g := NewGeoResolver("")
	res := g.Resolve(http.Header{}, "203.0.113.1")
	if res.Country != "" {
		t.Errorf("Country = %q, want empty", res.Country)
	}
}
