package ingest

import "github.com/lanternmetrics/ingest-core/internal/models"

// SessionState is the minimal session state the pure algorithm needs;
// both the live DB-backed path (session_engine.go) and the Rebuilder
// (internal/rebuild) hold sessions in this shape so the two replay the
// identical rule for bucket migration.
type SessionState struct {
	FirstTimestamp int64
	LastTimestamp  int64
	Pageviews      int
	Context        models.SessionContext
}

// FreshSession returns the state and deltas for a session's first pageview.
func FreshSession(eventTimestamp int64, ctx models.SessionContext) (SessionState, SessionOutput) {
	state := SessionState{FirstTimestamp: eventTimestamp, LastTimestamp: eventTimestamp, Pageviews: 1, Context: ctx}
	out := SessionOutput{
		MetricsDeltas: []models.MetricsDelta{{
			BucketTimestamp: eventTimestamp,
			Metrics:         models.MetricVector{Sessions: 1, BouncedSessions: 1},
		}},
		DimensionDeltas: dimensionDeltasFor(eventTimestamp, ctx, 1),
	}
	return state, out
}

// ComputeSessionUpdate applies steps 2-5 of §4.4 to an existing session,
// given the next pageview's timestamp and context. It returns the updated
// state and the signed deltas to apply.
func ComputeSessionUpdate(prev SessionState, eventTimestamp int64, eventContext models.SessionContext) (SessionState, SessionOutput) {
	nextFirst := prev.FirstTimestamp
	if eventTimestamp < nextFirst {
		nextFirst = eventTimestamp
	}
	nextLast := prev.LastTimestamp
	if eventTimestamp > nextLast {
		nextLast = eventTimestamp
	}
	nextPageviews := prev.Pageviews + 1
	eventIsNewFirst := eventTimestamp < prev.FirstTimestamp
	nextContext := prev.Context
	if eventIsNewFirst {
		nextContext = eventContext
	}

	prevBucket := newBucketKey(prev.FirstTimestamp)
	nextBucket := newBucketKey(nextFirst)

	next := SessionState{FirstTimestamp: nextFirst, LastTimestamp: nextLast, Pageviews: nextPageviews, Context: nextContext}
	out := SessionOutput{}

	if !prevBucket.equal(nextBucket) {
		prevDuration := prev.LastTimestamp - prev.FirstTimestamp
		nextDuration := nextLast - nextFirst

		removed := models.MetricVector{Sessions: -1}
		if prev.Pageviews == 1 {
			removed.BouncedSessions = -1
		}
		if prevDuration > 0 {
			removed.AvgSessionDurationMs = -prevDuration
		}
		out.MetricsDeltas = append(out.MetricsDeltas, models.MetricsDelta{BucketTimestamp: prev.FirstTimestamp, Metrics: removed})
		out.DimensionDeltas = append(out.DimensionDeltas, dimensionDeltasFor(prev.FirstTimestamp, prev.Context, -1)...)

		added := models.MetricVector{Sessions: 1}
		if nextPageviews == 1 {
			added.BouncedSessions = 1
		}
		if nextDuration > 0 {
			added.AvgSessionDurationMs = nextDuration
		}
		out.MetricsDeltas = append(out.MetricsDeltas, models.MetricsDelta{BucketTimestamp: nextFirst, Metrics: added})
		out.DimensionDeltas = append(out.DimensionDeltas, dimensionDeltasFor(nextFirst, nextContext, 1)...)
		return next, out
	}

	prevDuration := prev.LastTimestamp - prev.FirstTimestamp
	nextDuration := nextLast - nextFirst
	same := models.MetricVector{AvgSessionDurationMs: nextDuration - prevDuration}
	if prev.Pageviews == 1 {
		same.BouncedSessions = -1
	}
	out.MetricsDeltas = append(out.MetricsDeltas, models.MetricsDelta{BucketTimestamp: nextFirst, Metrics: same})

	if !contextsEqual(prev.Context, nextContext) {
		out.DimensionDeltas = append(out.DimensionDeltas, dimensionDeltasFor(nextFirst, prev.Context, -1)...)
		out.DimensionDeltas = append(out.DimensionDeltas, dimensionDeltasFor(nextFirst, nextContext, 1)...)
	}

	return next, out
}

// BucketOf exposes bucketKey's (date, hour) computation to other packages.
func BucketOf(tsMs int64) (date string, hour int) {
	b := newBucketKey(tsMs)
	return b.date, b.hour
}
