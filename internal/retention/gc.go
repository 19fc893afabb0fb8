// Package retention implements C8: bounded, periodic deletion of data past
// its configured retention horizon across raw events, sessions, and the
// rollup cubes.
package retention

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanternmetrics/ingest-core/internal/repository"
)

// Result reports how many rows each table lost in one GC pass.
type Result struct {
	RawEventsDeleted    int64
	SessionsDeleted     int64
	RollupDailyDeleted  int64
	RollupHourlyDeleted int64
	Errors              []error
}

// GC deletes rows older than its configured horizons, one table at a time,
// bounded by BatchSize rows per table per pass so a single run never holds
// a long-lived write lock.
type GC struct {
	repos *repository.Repositories
	log   zerolog.Logger

	rawEventMaxAge    time.Duration
	sessionMaxAge     time.Duration
	rollupDailyMaxAge time.Duration
	rollupHourlyMaxAge time.Duration
	batchSize         int

	running atomic.Bool
}

// New constructs a GC. The four *MaxAge durations and batchSize come
// straight from config.Config's Retention* fields.
func New(repos *repository.Repositories, log zerolog.Logger, rawEventMaxAge, sessionMaxAge, rollupDailyMaxAge, rollupHourlyMaxAge time.Duration, batchSize int) *GC {
	return &GC{
		repos:              repos,
		log:                log.With().Str("component", "retention").Logger(),
		rawEventMaxAge:     rawEventMaxAge,
		sessionMaxAge:      sessionMaxAge,
		rollupDailyMaxAge:  rollupDailyMaxAge,
		rollupHourlyMaxAge: rollupHourlyMaxAge,
		batchSize:          batchSize,
	}
}

// Run executes one GC pass. If a pass is already in flight (from a
// concurrent call or an overlapping scheduled tick), Run returns
// immediately with a zero Result rather than racing the earlier pass.
func (g *GC) Run(ctx context.Context) Result {
	if !g.running.CompareAndSwap(false, true) {
		g.log.Warn().Msg("retention pass already running, skipping")
		return Result{}
	}
	defer g.running.Store(false)

	now := time.Now().UTC()
	result := Result{}

	rawCutoff := now.Add(-g.rawEventMaxAge).UnixMilli()
	if n, err := g.repos.Events.DeleteOlderThan(ctx, rawCutoff, g.batchSize); err != nil {
		g.log.Error().Err(err).Msg("delete old raw events failed")
		result.Errors = append(result.Errors, err)
	} else {
		result.RawEventsDeleted = n
	}

	sessionCutoff := now.Add(-g.sessionMaxAge).UnixMilli()
	if n, err := g.repos.Sessions.DeleteOlderThan(ctx, sessionCutoff, g.batchSize); err != nil {
		g.log.Error().Err(err).Msg("delete old sessions failed")
		result.Errors = append(result.Errors, err)
	} else {
		result.SessionsDeleted = n
	}

	dailyCutoff := now.Add(-g.rollupDailyMaxAge).Format("2006-01-02")
	if n, err := g.repos.Rollups.DeleteDailyOlderThan(ctx, dailyCutoff, g.batchSize); err != nil {
		g.log.Error().Err(err).Msg("delete old daily rollups failed")
		result.Errors = append(result.Errors, err)
	} else {
		result.RollupDailyDeleted = n
	}

	hourlyCutoff := now.Add(-g.rollupHourlyMaxAge).Format("2006-01-02")
	if n, err := g.repos.Rollups.DeleteHourlyOlderThan(ctx, hourlyCutoff, g.batchSize); err != nil {
		g.log.Error().Err(err).Msg("delete old hourly rollups failed")
		result.Errors = append(result.Errors, err)
	} else {
		result.RollupHourlyDeleted = n
	}

	g.log.Info().
		Int64("raw_events_deleted", result.RawEventsDeleted).
		Int64("sessions_deleted", result.SessionsDeleted).
		Int64("rollup_daily_deleted", result.RollupDailyDeleted).
		Int64("rollup_hourly_deleted", result.RollupHourlyDeleted).
		Int("errors", len(result.Errors)).
		Msg("retention pass complete")

	return result
}

// RunScheduled runs Run immediately and then again every interval, until
// ctx is canceled.
func (g *GC) RunScheduled(ctx context.Context, interval time.Duration) {
	g.log.Info().Dur("interval", interval).Msg("starting scheduled retention GC")

	g.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.log.Info().Msg("scheduled retention GC stopped")
			return
		case <-ticker.C:
			g.Run(ctx)
		}
	}
}
