package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
)

// dimensionFallback resolves a raw dimension value to its stored form per
// the §4.5 fallback table.
func dimensionFallback(dim models.Dimension, value string) string {
	if value != "" {
		return value
	}
	switch dim {
	case models.DimensionPage:
		return "/"
	case models.DimensionReferrerDomain:
		return "direct"
	case models.DimensionUTMSource, models.DimensionUTMCampaign:
		return "not set"
	default:
		return "unknown"
	}
}

// ApplyRollups upserts one session update's metrics deltas and dimension
// deltas into the hourly/daily overall and dimensional cubes, plus
// VisitorDaily membership, all within tx. This is C5.
func ApplyRollups(ctx context.Context, tx *sql.Tx, rollups repository.RollupRepository, siteID, visitorID string, metricsDeltas []models.MetricsDelta, dimensionDeltas []models.DimensionDelta) error {
	firstSeenByDate := map[string]bool{}

	for _, md := range metricsDeltas {
		bucket := newBucketKey(md.BucketTimestamp)

		delta := md.Metrics
		if visitorID != "" {
			firstSeen, err := rollups.TryMarkVisitorSeen(ctx, tx, siteID, bucket.date, visitorID, md.BucketTimestamp)
			if err != nil {
				return fmt.Errorf("mark visitor seen: %w", err)
			}
			if firstSeen {
				delta.Visitors = 1
				firstSeenByDate[bucket.date] = true
			}
		}

		if err := rollups.ApplyHourly(ctx, tx, siteID, bucket.date, bucket.hour, delta); err != nil {
			return fmt.Errorf("apply hourly: %w", err)
		}
		if err := rollups.ApplyDaily(ctx, tx, siteID, bucket.date, delta); err != nil {
			return fmt.Errorf("apply daily: %w", err)
		}
	}

	for _, dd := range dimensionDeltas {
		bucket := newBucketKey(dd.BucketTimestamp)
		value := dimensionFallback(dd.Dimension, dd.Value)
		delta := models.MetricVector{Sessions: int64(dd.Sign)}
		if dd.Sign > 0 && firstSeenByDate[bucket.date] {
			delta.Visitors = 1
		}

		if err := rollups.ApplyDimensionHourly(ctx, tx, siteID, bucket.date, bucket.hour, dd.Dimension, value, delta); err != nil {
			return fmt.Errorf("apply dimension hourly: %w", err)
		}
		if err := rollups.ApplyDimensionDaily(ctx, tx, siteID, bucket.date, dd.Dimension, value, delta); err != nil {
			return fmt.Errorf("apply dimension daily: %w", err)
		}
	}

	return nil
}

// ApplyOverall upserts delta into the overall hourly/daily cubes only,
// touching no dimension table. Use this for metrics that don't carry a
// dimension of their own — e.g. payment revenue, which attaches to no
// raw event dimension (the goal dimension applies only to goal events).
func ApplyOverall(ctx context.Context, tx *sql.Tx, rollups repository.RollupRepository, siteID string, bucketTimestamp int64, delta models.MetricVector) error {
	bucket := newBucketKey(bucketTimestamp)
	if err := rollups.ApplyHourly(ctx, tx, siteID, bucket.date, bucket.hour, delta); err != nil {
		return fmt.Errorf("apply hourly: %w", err)
	}
	if err := rollups.ApplyDaily(ctx, tx, siteID, bucket.date, delta); err != nil {
		return fmt.Errorf("apply daily: %w", err)
	}
	return nil
}

// ApplyGoalMetrics upserts a single metrics delta that is not tied to a
// session (the goal counter of a goal event) directly into the overall
// cubes and into the goal-dimension cubes under goalName.
func ApplyGoalMetrics(ctx context.Context, tx *sql.Tx, rollups repository.RollupRepository, siteID, goalName string, bucketTimestamp int64, delta models.MetricVector) error {
	bucket := newBucketKey(bucketTimestamp)
	if err := rollups.ApplyHourly(ctx, tx, siteID, bucket.date, bucket.hour, delta); err != nil {
		return fmt.Errorf("apply hourly: %w", err)
	}
	if err := rollups.ApplyDaily(ctx, tx, siteID, bucket.date, delta); err != nil {
		return fmt.Errorf("apply daily: %w", err)
	}
	value := dimensionFallback(models.DimensionGoal, goalName)
	if err := rollups.ApplyDimensionHourly(ctx, tx, siteID, bucket.date, bucket.hour, models.DimensionGoal, value, delta); err != nil {
		return fmt.Errorf("apply goal dimension hourly: %w", err)
	}
	if err := rollups.ApplyDimensionDaily(ctx, tx, siteID, bucket.date, models.DimensionGoal, value, delta); err != nil {
		return fmt.Errorf("apply goal dimension daily: %w", err)
	}
	return nil
}

// UTCDate formats tsMs as a UTC calendar day string YYYY-MM-DD.
func UTCDate(tsMs int64) string {
	return time.UnixMilli(tsMs).UTC().Format("2006-01-02")
}
