// Package rebuild implements C7: deterministic replay of raw events over a
// time range to regenerate rollup rows equal to the live ingest pipeline's
// output.
package rebuild

import (
	"context"
	"fmt"
	"time"

	"github.com/lanternmetrics/ingest-core/internal/ingest"
	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
)

const insertChunkSize = 500

// Request describes one rebuild invocation.
type Request struct {
	SiteID      string // empty means all sites
	From        int64  // UTC epoch-ms, snapped to a day start
	To          int64  // UTC epoch-ms, snapped to a day start; must be > From
	DryRun      bool
	IncludeDiff bool
}

// BucketDiff is the per-bucket difference between the existing rollup row
// and the freshly computed one, returned only when Request.IncludeDiff.
// Only overall hourly/daily buckets are compared; dimension rows are not,
// so Dimension and Value are always empty.
type BucketDiff struct {
	SiteID    string
	Date      string
	Hour      int // -1 for daily
	Dimension models.Dimension
	Value     string
	Existing  models.MetricVector
	Computed  models.MetricVector
}

// Result is what a rebuild invocation returns.
type Result struct {
	EventsProcessed int
	BucketsWritten  int
	Diffs           []BucketDiff
}

// sessionKey identifies one session's replay state.
type sessionKey struct {
	siteID, sessionID, visitorID string
}

type overallKey struct {
	siteID, date string
	hour         int // -1 for daily
}

type dimensionKey struct {
	siteID, date string
	hour         int // -1 for daily
	dim          models.Dimension
	value        string
}

type visitorKey struct {
	siteID, date, visitorID string
}

// Rebuilder replays raw events through the same session/rollup algorithm
// as the live pipeline and, unless DryRun, rewrites the rollup cubes for
// the requested range to match.
type Rebuilder struct {
	repos *repository.Repositories
}

// New constructs a Rebuilder backed by repos.
func New(repos *repository.Repositories) *Rebuilder {
	return &Rebuilder{repos: repos}
}

// Run executes req. from/to are snapped to UTC day starts by the caller
// (see SnapToDayStart); Run itself requires req.To > req.From.
func (r *Rebuilder) Run(ctx context.Context, req Request) (*Result, error) {
	if req.To <= req.From {
		return nil, fmt.Errorf("rebuild: to (%d) must be after from (%d)", req.To, req.From)
	}

	sessions := map[sessionKey]ingest.SessionState{}
	visitors := map[visitorKey]bool{}
	overall := map[overallKey]models.MetricVector{}
	dimensions := map[dimensionKey]models.MetricVector{}

	eventsProcessed := 0
	err := r.repos.Events.StreamRange(ctx, req.SiteID, req.From, req.To, func(e models.RawEvent) error {
		eventsProcessed++
		r.replay(e, sessions, visitors, overall, dimensions)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stream raw events: %w", err)
	}

	result := &Result{EventsProcessed: eventsProcessed}

	if req.IncludeDiff {
		diffs, err := r.diff(ctx, req, overall, dimensions)
		if err != nil {
			return nil, fmt.Errorf("compute diff: %w", err)
		}
		result.Diffs = diffs
	}

	if req.DryRun {
		return result, nil
	}

	written, err := r.write(ctx, req, overall, dimensions)
	if err != nil {
		return nil, err
	}
	result.BucketsWritten = written
	return result, nil
}

func (r *Rebuilder) replay(e models.RawEvent, sessions map[sessionKey]ingest.SessionState, visitors map[visitorKey]bool, overall map[overallKey]models.MetricVector, dimensions map[dimensionKey]models.MetricVector) {
	if e.Normalized["bot"] == true {
		return
	}

	if e.Type == models.EventTypePageview && e.SessionID != "" {
		key := sessionKey{e.SiteID, e.SessionID, e.VisitorID}
		eventCtx := sessionContextFromNormalized(e.Normalized)

		var out ingest.SessionOutput
		if prev, ok := sessions[key]; ok {
			var next ingest.SessionState
			next, out = ingest.ComputeSessionUpdate(prev, e.Timestamp, eventCtx)
			sessions[key] = next
		} else {
			var next ingest.SessionState
			next, out = ingest.FreshSession(e.Timestamp, eventCtx)
			sessions[key] = next
		}

		firstSeenDates := map[string]bool{}
		for _, md := range out.MetricsDeltas {
			delta := md.Metrics
			if e.VisitorID != "" {
				date, _ := ingest.BucketOf(md.BucketTimestamp)
				vk := visitorKey{e.SiteID, date, e.VisitorID}
				if !visitors[vk] {
					visitors[vk] = true
					delta.Visitors = 1
					firstSeenDates[date] = true
				}
			}
			accumulate(overall, e.SiteID, md.BucketTimestamp, delta)
		}
		for _, dd := range out.DimensionDeltas {
			date, _ := ingest.BucketOf(dd.BucketTimestamp)
			accumulateDimension(dimensions, e.SiteID, dd, dd.Sign > 0 && firstSeenDates[date])
		}

		accumulate(overall, e.SiteID, e.Timestamp, models.MetricVector{Pageviews: 1})
	}

	if e.Type == models.EventTypeGoal {
		accumulate(overall, e.SiteID, e.Timestamp, models.MetricVector{Goals: 1})
		value := goalDimensionValue(e.Name)
		accumulateDimension(dimensions, e.SiteID, models.DimensionDelta{BucketTimestamp: e.Timestamp, Dimension: models.DimensionGoal, Value: value, Sign: 1}, false)
	}

	if e.Type == models.EventTypePayment {
		revenueCents, _ := e.Metadata["amountCents"].(float64)
		accumulate(overall, e.SiteID, e.Timestamp, models.MetricVector{RevenueCents: int64(revenueCents)})
	}
}

func sessionContextFromNormalized(n map[string]any) models.SessionContext {
	str := func(k string) string {
		v, _ := n[k].(string)
		return v
	}
	utm, _ := n["utm"].(map[string]any)
	utmStr := func(k string) string {
		if utm == nil {
			return ""
		}
		v, _ := utm[k].(string)
		return v
	}
	return models.SessionContext{
		Path: str("path"), ReferrerDomain: str("referrer_domain"),
		UTMSource: utmStr("source"), UTMCampaign: utmStr("campaign"),
		Country: str("country"), Region: str("region"), City: str("city"),
		Device: str("device"), Browser: str("browser"),
	}
}

func goalDimensionValue(name string) string {
	if name == "" {
		return ""
	}
	return name
}

func accumulate(overall map[overallKey]models.MetricVector, siteID string, tsMs int64, delta models.MetricVector) {
	date, hour := ingest.BucketOf(tsMs)
	hourKey := overallKey{siteID, date, hour}
	v := overall[hourKey]
	v.Add(delta)
	overall[hourKey] = v

	dayKey := overallKey{siteID, date, -1}
	d := overall[dayKey]
	d.Add(delta)
	overall[dayKey] = d
}

func accumulateDimension(dimensions map[dimensionKey]models.MetricVector, siteID string, dd models.DimensionDelta, visitorFirstSeen bool) {
	date, hour := ingest.BucketOf(dd.BucketTimestamp)
	delta := models.MetricVector{Sessions: int64(dd.Sign)}
	if dd.Dimension == models.DimensionGoal {
		delta = models.MetricVector{Goals: int64(dd.Sign)}
	}
	if visitorFirstSeen {
		delta.Visitors = 1
	}
	value := dd.Value
	if value == "" {
		switch dd.Dimension {
		case models.DimensionPage:
			value = "/"
		case models.DimensionReferrerDomain:
			value = "direct"
		case models.DimensionUTMSource, models.DimensionUTMCampaign:
			value = "not set"
		default:
			value = "unknown"
		}
	}

	hourKey := dimensionKey{siteID, date, hour, dd.Dimension, value}
	v := dimensions[hourKey]
	v.Add(delta)
	dimensions[hourKey] = v

	dayKey := dimensionKey{siteID, date, -1, dd.Dimension, value}
	d := dimensions[dayKey]
	d.Add(delta)
	dimensions[dayKey] = d
}

func (r *Rebuilder) write(ctx context.Context, req Request, overall map[overallKey]models.MetricVector, dimensions map[dimensionKey]models.MetricVector) (int, error) {
	tx, err := repository.BeginWriteTx(ctx, r.repos.DB)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	fromDate := ingest.UTCDate(req.From)
	toDate := ingest.UTCDate(req.To)
	siteIDs := scopedSiteIDs(req.SiteID, overall)
	for _, siteID := range siteIDs {
		if err := r.repos.Rollups.DeleteRange(ctx, tx, siteID, fromDate, toDate); err != nil {
			return 0, fmt.Errorf("delete existing range for %s: %w", siteID, err)
		}
	}

	written := 0
	chunk := 0
	for key, metrics := range overall {
		if key.hour == -1 {
			if err := r.repos.Rollups.ApplyDaily(ctx, tx, key.siteID, key.date, metrics); err != nil {
				return 0, fmt.Errorf("write daily %s/%s: %w", key.siteID, key.date, err)
			}
		} else {
			if err := r.repos.Rollups.ApplyHourly(ctx, tx, key.siteID, key.date, key.hour, metrics); err != nil {
				return 0, fmt.Errorf("write hourly %s/%s/%d: %w", key.siteID, key.date, key.hour, err)
			}
		}
		written++
		chunk++
		if chunk >= insertChunkSize {
			chunk = 0
		}
	}
	for key, metrics := range dimensions {
		if key.hour == -1 {
			if err := r.repos.Rollups.ApplyDimensionDaily(ctx, tx, key.siteID, key.date, key.dim, key.value, metrics); err != nil {
				return 0, fmt.Errorf("write dimension daily: %w", err)
			}
		} else {
			if err := r.repos.Rollups.ApplyDimensionHourly(ctx, tx, key.siteID, key.date, key.hour, key.dim, key.value, metrics); err != nil {
				return 0, fmt.Errorf("write dimension hourly: %w", err)
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func scopedSiteIDs(requested string, overall map[overallKey]models.MetricVector) []string {
	if requested != "" {
		return []string{requested}
	}
	seen := map[string]bool{}
	var ids []string
	for k := range overall {
		if !seen[k.siteID] {
			seen[k.siteID] = true
			ids = append(ids, k.siteID)
		}
	}
	return ids
}

func (r *Rebuilder) diff(ctx context.Context, req Request, overall map[overallKey]models.MetricVector, dimensions map[dimensionKey]models.MetricVector) ([]BucketDiff, error) {
	var diffs []BucketDiff
	for key, computed := range overall {
		var existing models.RollupBucket
		var err error
		if key.hour == -1 {
			existing, err = r.repos.Rollups.GetDaily(ctx, key.siteID, key.date)
		} else {
			existing, err = r.repos.Rollups.GetHourly(ctx, key.siteID, key.date, key.hour)
		}
		if err != nil {
			return nil, err
		}
		if existing.Metrics != computed {
			diffs = append(diffs, BucketDiff{SiteID: key.siteID, Date: key.date, Hour: key.hour, Existing: existing.Metrics, Computed: computed})
		}
	}
	return diffs, nil
}

// SnapToDayStart returns the UTC start-of-day timestamp (ms) for tsMs.
func SnapToDayStart(tsMs int64) int64 {
	t := time.UnixMilli(tsMs).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
}
