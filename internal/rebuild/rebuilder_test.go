package rebuild

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/database/migrations"
	"github.com/lanternmetrics/ingest-core/internal/ingest"
	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/normalize"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewRepositories(db)
}

func insertTestSite(t *testing.T, repos *repository.Repositories) *models.Site {
	t.Helper()
	site := &models.Site{
		ID: "s1", WebsiteID: "w1", APIKeyHash: "h1", Domain: "example.com",
		Timezone: "UTC", RevenueProvider: models.RevenueProviderNone,
	}
	if err := repos.Sites.Create(context.Background(), site); err != nil {
		t.Fatalf("failed to insert test site: %v", err)
	}
	return site
}

func ingestPageviews(t *testing.T, repos *repository.Repositories, site *models.Site) {
	t.Helper()
	p := ingest.NewPipeline(repos, normalize.NewGeoResolver(""))
	headers := http.Header{}
	headers.Set("Origin", "https://example.com")

	ts1 := int64(1735725600000) // 2025-01-01T10:00:00Z
	ts2 := ts1 + 10*60*1000
	ts3 := ts1 + 90*60*1000 // next hour bucket, still a new session

	bodies := []struct {
		body  []byte
		nowMs int64
	}{
		{[]byte(`{"type":"pageview","path":"/","sessionId":"sess1","visitorId":"v1","ts":` + itoaRebuild(ts1) + `}`), ts1},
		{[]byte(`{"type":"pageview","path":"/about","sessionId":"sess1","visitorId":"v1","ts":` + itoaRebuild(ts2) + `}`), ts2},
		{[]byte(`{"type":"pageview","path":"/","sessionId":"sess2","visitorId":"v2","ts":` + itoaRebuild(ts3) + `}`), ts3},
		{[]byte(`{"type":"goal","name":"signup","sessionId":"sess2","visitorId":"v2","ts":` + itoaRebuild(ts3) + `}`), ts3},
	}
	for _, b := range bodies {
		if _, err := p.Ingest(context.Background(), ingest.Request{
			Site: site, Body: b.body, Headers: headers, NowMs: b.nowMs,
		}); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}
}

func itoaRebuild(n int64) string {
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

// S6: a dry-run rebuild over the same range the live pipeline just wrote
// must report zero diffs (the Equivalence property).
func TestRebuilder_EquivalenceWithLivePipeline(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos)
	ingestPageviews(t, repos, site)

	dayStart := SnapToDayStart(1735725600000)
	dayEnd := dayStart + 24*60*60*1000

	r := New(repos)
	result, err := r.Run(context.Background(), Request{
		SiteID: site.ID, From: dayStart, To: dayEnd, DryRun: true, IncludeDiff: true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.EventsProcessed != 4 {
		t.Errorf("EventsProcessed = %d, want 4", result.EventsProcessed)
	}
	if len(result.Diffs) != 0 {
		t.Fatalf("Diffs = %+v, want none (rebuild must equal the live pipeline's aggregates)", result.Diffs)
	}
}

// A dry run must not mutate any rollup state.
func TestRebuilder_DryRunDoesNotMutateRollups(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos)
	ingestPageviews(t, repos, site)

	before, err := repos.Rollups.GetDaily(context.Background(), site.ID, "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}

	dayStart := SnapToDayStart(1735725600000)
	r := New(repos)
	if _, err := r.Run(context.Background(), Request{
		SiteID: site.ID, From: dayStart, To: dayStart + 24*60*60*1000, DryRun: true,
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	after, err := repos.Rollups.GetDaily(context.Background(), site.ID, "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if before.Metrics != after.Metrics {
		t.Fatalf("dry run mutated rollups: before=%+v after=%+v", before.Metrics, after.Metrics)
	}
}

// A non-dry-run rebuild deletes and rewrites the range, reproducing the
// same aggregates the live pipeline had already computed.
func TestRebuilder_WriteReproducesLiveAggregates(t *testing.T) {
	repos := setupTestRepos(t)
	site := insertTestSite(t, repos)
	ingestPageviews(t, repos, site)

	before, err := repos.Rollups.GetDaily(context.Background(), site.ID, "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}

	dayStart := SnapToDayStart(1735725600000)
	r := New(repos)
	result, err := r.Run(context.Background(), Request{
		SiteID: site.ID, From: dayStart, To: dayStart + 24*60*60*1000, DryRun: false,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.BucketsWritten == 0 {
		t.Fatal("BucketsWritten = 0, want > 0")
	}

	after, err := repos.Rollups.GetDaily(context.Background(), site.ID, "2025-01-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if before.Metrics != after.Metrics {
		t.Fatalf("rebuild changed daily aggregates: before=%+v after=%+v", before.Metrics, after.Metrics)
	}
}

func TestSnapToDayStart(t *testing.T) {
	ts := int64(1735725600000) // 2025-01-01T10:00:00Z
	want := int64(1735689600000) // 2025-01-01T00:00:00Z
	if got := SnapToDayStart(ts); got != want {
		t.Errorf("SnapToDayStart(%d) = %d, want %d", ts, got, want)
	}
}
