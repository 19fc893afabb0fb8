package ingest

import (
	"context"
	"net/http"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/normalize"
)

func pageviewBody(sessionID, visitorID, path string, ts int64) []byte {
	return []byte(`{"type":"pageview","path":"` + path + `","sessionId":"` + sessionID +
		`","visitorId":"` + visitorID + `","ts":` + itoa(ts) + `}`)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// S1: single pageview.
func TestPipeline_S1_SinglePageview(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos, "s1", "example.com")
	p := NewPipeline(repos, normalize.NewGeoResolver(""))

	ts := int64(1735725600000) // 2025-01-01T10:00:00Z
	headers := http.Header{}
	headers.Set("Origin", "https://example.com")
	headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36")

	resp, err := p.Ingest(context.Background(), Request{
		Site: site, Body: pageviewBody("sess1", "v1", "/", ts),
		Headers: headers, NowMs: ts,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if resp.Deduped {
		t.Fatal("first ingest should not be deduped")
	}

	daily, err := repos.Rollups.GetDaily(context.Background(), "s1", "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	m := daily.Metrics
	if m.Visitors != 1 || m.Sessions != 1 || m.BouncedSessions != 1 || m.Pageviews != 1 {
		t.Fatalf("daily metrics = %+v, want visitors=1 sessions=1 bouncedSessions=1 pageviews=1", m)
	}
}

// S2: second pageview in the same session, same hour, 10 minutes later.
func TestPipeline_S2_SecondPageviewSameHour(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos, "s1", "example.com")
	p := NewPipeline(repos, normalize.NewGeoResolver(""))

	ts1 := int64(1735725600000) // 2025-01-01T10:00:00Z
	ts2 := ts1 + 10*60*1000

	headers := http.Header{}
	headers.Set("Origin", "https://example.com")

	if _, err := p.Ingest(context.Background(), Request{
		Site: site, Body: pageviewBody("sess1", "v1", "/", ts1), Headers: headers, NowMs: ts1,
	}); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if _, err := p.Ingest(context.Background(), Request{
		Site: site, Body: pageviewBody("sess1", "v1", "/about", ts2), Headers: headers, NowMs: ts2,
	}); err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	daily, err := repos.Rollups.GetDaily(context.Background(), "s1", "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	m := daily.Metrics
	if m.Pageviews != 2 || m.Sessions != 1 || m.BouncedSessions != 0 {
		t.Fatalf("daily metrics = %+v, want pageviews=2 sessions=1 bouncedSessions=0", m)
	}
	if m.AvgSessionDurationMs != 600000 {
		t.Errorf("AvgSessionDurationMs = %d, want 600000", m.AvgSessionDurationMs)
	}
}

// S3: out-of-order earlier pageview migrates the session's bucket.
func TestPipeline_S3_OutOfOrderMigratesBucket(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos, "s1", "example.com")
	p := NewPipeline(repos, normalize.NewGeoResolver(""))

	ts1 := int64(1735725600000) // 2025-01-01T10:00:00Z
	earlier := int64(1735687800000) // 2024-12-31T23:30:00Z

	headers := http.Header{}
	headers.Set("Origin", "https://example.com")

	if _, err := p.Ingest(context.Background(), Request{
		Site: site, Body: pageviewBody("sess1", "v1", "/", ts1), Headers: headers, NowMs: ts1,
	}); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if _, err := p.Ingest(context.Background(), Request{
		Site: site, Body: pageviewBody("sess1", "v1", "/early", earlier), Headers: headers, NowMs: ts1,
	}); err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	newBucket, err := repos.Rollups.GetHourly(context.Background(), "s1", "2025-01-01", 10)
	if err != nil {
		t.Fatalf("GetHourly(new) error = %v", err)
	}
	if newBucket.Metrics.Sessions != 0 {
		t.Errorf("new bucket sessions = %d, want 0 (migrated away)", newBucket.Metrics.Sessions)
	}

	oldBucket, err := repos.Rollups.GetHourly(context.Background(), "s1", "2024-12-31", 23)
	if err != nil {
		t.Fatalf("GetHourly(old) error = %v", err)
	}
	if oldBucket.Metrics.Sessions != 1 {
		t.Errorf("old bucket sessions = %d, want 1 (migrated to)", oldBucket.Metrics.Sessions)
	}

	daily1, _ := repos.Rollups.GetDaily(context.Background(), "s1", "2025-01-01")
	daily2, _ := repos.Rollups.GetDaily(context.Background(), "s1", "2024-12-31")
	totalVisitors := daily1.Metrics.Visitors + daily2.Metrics.Visitors
	if totalVisitors != 2 {
		t.Errorf("total visitors across both days = %d, want 2 (dedup per day, counted once on each date)", totalVisitors)
	}

	m := models.MetricVector{}
	if daily1.Metrics.Sessions != 0 {
		t.Errorf("2025-01-01 daily sessions = %d, want 0", daily1.Metrics.Sessions)
	}
	if daily2.Metrics.Sessions != 1 {
		t.Errorf("2024-12-31 daily sessions = %d, want 1", daily2.Metrics.Sessions)
	}
	_ = m
}

// A replayed eventId must be a no-op: no additional deltas.
func TestPipeline_DedupNoAdditionalDeltas(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos, "s1", "example.com")
	p := NewPipeline(repos, normalize.NewGeoResolver(""))

	ts := int64(1735725600000)
	headers := http.Header{}
	headers.Set("Origin", "https://example.com")

	body := []byte(`{"type":"pageview","path":"/","sessionId":"sess1","visitorId":"v1","ts":` + itoa(ts) + `,"eventId":"evt-1"}`)

	if _, err := p.Ingest(context.Background(), Request{Site: site, Body: body, Headers: headers, NowMs: ts}); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	resp2, err := p.Ingest(context.Background(), Request{Site: site, Body: body, Headers: headers, NowMs: ts + 1000})
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if !resp2.Deduped {
		t.Fatal("replayed eventId should report deduped=true")
	}

	daily, err := repos.Rollups.GetDaily(context.Background(), "s1", "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if daily.Metrics.Pageviews != 1 {
		t.Errorf("Pageviews = %d, want 1 (deduped replay adds nothing)", daily.Metrics.Pageviews)
	}
}
