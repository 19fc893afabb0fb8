package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
)

// SessionInput is one pageview event attributed to a session.
type SessionInput struct {
	SiteID         string
	SessionID      string
	VisitorID      string
	EventTimestamp int64
	Context        models.SessionContext
	NowMs          int64
}

// SessionOutput is the signed deltas the session mutation produced, to be
// applied by the RollupEngine within the same transaction.
type SessionOutput struct {
	MetricsDeltas   []models.MetricsDelta
	DimensionDeltas []models.DimensionDelta
}

// dimensionsOf maps a SessionContext onto the nine session-attributable
// dimensions (goal is never emitted here; it only applies to goal events).
func dimensionsOf(ctx models.SessionContext) []struct {
	dim   models.Dimension
	value string
} {
	return []struct {
		dim   models.Dimension
		value string
	}{
		{models.DimensionPage, ctx.Path},
		{models.DimensionReferrerDomain, ctx.ReferrerDomain},
		{models.DimensionUTMSource, ctx.UTMSource},
		{models.DimensionUTMCampaign, ctx.UTMCampaign},
		{models.DimensionCountry, ctx.Country},
		{models.DimensionRegion, ctx.Region},
		{models.DimensionCity, ctx.City},
		{models.DimensionDevice, ctx.Device},
		{models.DimensionBrowser, ctx.Browser},
	}
}

func dimensionDeltasFor(tsMs int64, ctx models.SessionContext, sign int) []models.DimensionDelta {
	dims := dimensionsOf(ctx)
	out := make([]models.DimensionDelta, 0, len(dims))
	for _, d := range dims {
		out = append(out, models.DimensionDelta{
			BucketTimestamp: tsMs, Dimension: d.dim, Value: d.value, Sign: sign,
		})
	}
	return out
}

func contextsEqual(a, b models.SessionContext) bool {
	return a == b
}

// ApplySession runs the SessionEngine state machine described in §4.4,
// delegating the actual migration/merge rule to the pure functions in
// session_algorithm.go so the live path and the Rebuilder share one
// implementation. tx must be a write transaction (repository.BeginWriteTx);
// the TryInsert below is a write statement, so SQLite's write lock is held
// by the time Lock reads the row and Lock observes a serialized view of it
// for the remainder of the transaction.
func ApplySession(ctx context.Context, tx *sql.Tx, sessions repository.SessionRepository, in SessionInput) (*SessionOutput, error) {
	fresh := &models.Session{
		SiteID:          in.SiteID,
		SessionID:       in.SessionID,
		VisitorID:       in.VisitorID,
		FirstTimestamp:  in.EventTimestamp,
		LastTimestamp:   in.EventTimestamp,
		Pageviews:       1,
		FirstNormalized: in.Context,
		CreatedAt:       in.NowMs,
		UpdatedAt:       in.NowMs,
	}
	inserted, err := sessions.TryInsert(ctx, tx, fresh)
	if err != nil {
		return nil, fmt.Errorf("session try-insert: %w", err)
	}
	if inserted {
		_, out := FreshSession(in.EventTimestamp, in.Context)
		return &out, nil
	}

	prev, err := sessions.Lock(ctx, tx, in.SiteID, in.SessionID, in.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("session lock: %w", err)
	}

	prevState := SessionState{
		FirstTimestamp: prev.FirstTimestamp, LastTimestamp: prev.LastTimestamp,
		Pageviews: prev.Pageviews, Context: prev.FirstNormalized,
	}
	next, out := ComputeSessionUpdate(prevState, in.EventTimestamp, in.Context)

	prev.FirstTimestamp = next.FirstTimestamp
	prev.LastTimestamp = next.LastTimestamp
	prev.Pageviews = next.Pageviews
	prev.FirstNormalized = next.Context
	prev.UpdatedAt = in.NowMs
	if err := sessions.Update(ctx, tx, prev); err != nil {
		return nil, fmt.Errorf("session update: %w", err)
	}

	return &out, nil
}
