package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// SQLiteRollupRepository is a RollupRepository backed by SQLite/libsql.
// Additive upserts use SQLite's INSERT ... ON CONFLICT DO UPDATE SET
// col = col + excluded.col, which keeps every accumulation atomic without a
// separate read-modify-write round trip.
type SQLiteRollupRepository struct {
	db *sql.DB
}

// NewSQLiteRollupRepository constructs a SQLiteRollupRepository.
func NewSQLiteRollupRepository(db *sql.DB) *SQLiteRollupRepository {
	return &SQLiteRollupRepository{db: db}
}

func (r *SQLiteRollupRepository) ApplyHourly(ctx context.Context, tx *sql.Tx, siteID, date string, hour int, d models.MetricVector) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rollup_hourly (site_id, date, hour, visitors, sessions, bounced_sessions,
			avg_session_duration_ms, pageviews, goals, revenue_cents, revenue_new_cents,
			revenue_renewal_cents, revenue_refund_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, date, hour) DO UPDATE SET
			visitors = visitors + excluded.visitors,
			sessions = sessions + excluded.sessions,
			bounced_sessions = bounced_sessions + excluded.bounced_sessions,
			avg_session_duration_ms = avg_session_duration_ms + excluded.avg_session_duration_ms,
			pageviews = pageviews + excluded.pageviews,
			goals = goals + excluded.goals,
			revenue_cents = revenue_cents + excluded.revenue_cents,
			revenue_new_cents = revenue_new_cents + excluded.revenue_new_cents,
			revenue_renewal_cents = revenue_renewal_cents + excluded.revenue_renewal_cents,
			revenue_refund_cents = revenue_refund_cents + excluded.revenue_refund_cents,
			updated_at = excluded.updated_at
	`, siteID, date, hour, d.Visitors, d.Sessions, d.BouncedSessions, d.AvgSessionDurationMs,
		d.Pageviews, d.Goals, d.RevenueCents, d.RevenueByType.NewCents, d.RevenueByType.RenewalCents,
		d.RevenueByType.RefundCents, nowMs())
	if err != nil {
		return fmt.Errorf("apply hourly rollup: %w", err)
	}
	return nil
}

func (r *SQLiteRollupRepository) ApplyDaily(ctx context.Context, tx *sql.Tx, siteID, date string, d models.MetricVector) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rollup_daily (site_id, date, visitors, sessions, bounced_sessions,
			avg_session_duration_ms, pageviews, goals, revenue_cents, revenue_new_cents,
			revenue_renewal_cents, revenue_refund_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, date) DO UPDATE SET
			visitors = visitors + excluded.visitors,
			sessions = sessions + excluded.sessions,
			bounced_sessions = bounced_sessions + excluded.bounced_sessions,
			avg_session_duration_ms = avg_session_duration_ms + excluded.avg_session_duration_ms,
			pageviews = pageviews + excluded.pageviews,
			goals = goals + excluded.goals,
			revenue_cents = revenue_cents + excluded.revenue_cents,
			revenue_new_cents = revenue_new_cents + excluded.revenue_new_cents,
			revenue_renewal_cents = revenue_renewal_cents + excluded.revenue_renewal_cents,
			revenue_refund_cents = revenue_refund_cents + excluded.revenue_refund_cents,
			updated_at = excluded.updated_at
	`, siteID, date, d.Visitors, d.Sessions, d.BouncedSessions, d.AvgSessionDurationMs,
		d.Pageviews, d.Goals, d.RevenueCents, d.RevenueByType.NewCents, d.RevenueByType.RenewalCents,
		d.RevenueByType.RefundCents, nowMs())
	if err != nil {
		return fmt.Errorf("apply daily rollup: %w", err)
	}
	return nil
}

func (r *SQLiteRollupRepository) ApplyDimensionHourly(ctx context.Context, tx *sql.Tx, siteID, date string, hour int, dim models.Dimension, value string, d models.MetricVector) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rollup_dimension_hourly (site_id, date, hour, dimension, dimension_value,
			visitors, sessions, bounced_sessions, avg_session_duration_ms, pageviews, goals,
			revenue_cents, revenue_new_cents, revenue_renewal_cents, revenue_refund_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, date, hour, dimension, dimension_value) DO UPDATE SET
			visitors = visitors + excluded.visitors,
			sessions = sessions + excluded.sessions,
			bounced_sessions = bounced_sessions + excluded.bounced_sessions,
			avg_session_duration_ms = avg_session_duration_ms + excluded.avg_session_duration_ms,
			pageviews = pageviews + excluded.pageviews,
			goals = goals + excluded.goals,
			revenue_cents = revenue_cents + excluded.revenue_cents,
			revenue_new_cents = revenue_new_cents + excluded.revenue_new_cents,
			revenue_renewal_cents = revenue_renewal_cents + excluded.revenue_renewal_cents,
			revenue_refund_cents = revenue_refund_cents + excluded.revenue_refund_cents,
			updated_at = excluded.updated_at
	`, siteID, date, hour, string(dim), value, d.Visitors, d.Sessions, d.BouncedSessions,
		d.AvgSessionDurationMs, d.Pageviews, d.Goals, d.RevenueCents, d.RevenueByType.NewCents,
		d.RevenueByType.RenewalCents, d.RevenueByType.RefundCents, nowMs())
	if err != nil {
		return fmt.Errorf("apply dimension hourly rollup: %w", err)
	}
	return nil
}

func (r *SQLiteRollupRepository) ApplyDimensionDaily(ctx context.Context, tx *sql.Tx, siteID, date string, dim models.Dimension, value string, d models.MetricVector) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rollup_dimension_daily (site_id, date, dimension, dimension_value,
			visitors, sessions, bounced_sessions, avg_session_duration_ms, pageviews, goals,
			revenue_cents, revenue_new_cents, revenue_renewal_cents, revenue_refund_cents, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, date, dimension, dimension_value) DO UPDATE SET
			visitors = visitors + excluded.visitors,
			sessions = sessions + excluded.sessions,
			bounced_sessions = bounced_sessions + excluded.bounced_sessions,
			avg_session_duration_ms = avg_session_duration_ms + excluded.avg_session_duration_ms,
			pageviews = pageviews + excluded.pageviews,
			goals = goals + excluded.goals,
			revenue_cents = revenue_cents + excluded.revenue_cents,
			revenue_new_cents = revenue_new_cents + excluded.revenue_new_cents,
			revenue_renewal_cents = revenue_renewal_cents + excluded.revenue_renewal_cents,
			revenue_refund_cents = revenue_refund_cents + excluded.revenue_refund_cents,
			updated_at = excluded.updated_at
	`, siteID, date, string(dim), value, d.Visitors, d.Sessions, d.BouncedSessions,
		d.AvgSessionDurationMs, d.Pageviews, d.Goals, d.RevenueCents, d.RevenueByType.NewCents,
		d.RevenueByType.RenewalCents, d.RevenueByType.RefundCents, nowMs())
	if err != nil {
		return fmt.Errorf("apply dimension daily rollup: %w", err)
	}
	return nil
}

func (r *SQLiteRollupRepository) TryMarkVisitorSeen(ctx context.Context, tx *sql.Tx, siteID, date, visitorID string, firstSeenAt int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO visitor_daily (site_id, date, visitor_id, first_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (site_id, date, visitor_id) DO NOTHING
	`, siteID, date, visitorID, firstSeenAt)
	if err != nil {
		return false, fmt.Errorf("mark visitor seen: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteRollupRepository) GetHourly(ctx context.Context, siteID, date string, hour int) (models.RollupBucket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT visitors, sessions, bounced_sessions, avg_session_duration_ms, pageviews, goals,
			revenue_cents, revenue_new_cents, revenue_renewal_cents, revenue_refund_cents
		FROM rollup_hourly WHERE site_id = ? AND date = ? AND hour = ?
	`, siteID, date, hour)
	bucket := models.RollupBucket{SiteID: siteID, Date: date, Hour: hour}
	if err := scanMetricVector(row, &bucket.Metrics); err != nil {
		if err == sql.ErrNoRows {
			return bucket, nil
		}
		return bucket, fmt.Errorf("get hourly rollup: %w", err)
	}
	return bucket, nil
}

func (r *SQLiteRollupRepository) GetDaily(ctx context.Context, siteID, date string) (models.RollupBucket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT visitors, sessions, bounced_sessions, avg_session_duration_ms, pageviews, goals,
			revenue_cents, revenue_new_cents, revenue_renewal_cents, revenue_refund_cents
		FROM rollup_daily WHERE site_id = ? AND date = ?
	`, siteID, date)
	bucket := models.RollupBucket{SiteID: siteID, Date: date, Hour: -1}
	if err := scanMetricVector(row, &bucket.Metrics); err != nil {
		if err == sql.ErrNoRows {
			return bucket, nil
		}
		return bucket, fmt.Errorf("get daily rollup: %w", err)
	}
	return bucket, nil
}

func scanMetricVector(row *sql.Row, m *models.MetricVector) error {
	return row.Scan(&m.Visitors, &m.Sessions, &m.BouncedSessions, &m.AvgSessionDurationMs,
		&m.Pageviews, &m.Goals, &m.RevenueCents, &m.RevenueByType.NewCents,
		&m.RevenueByType.RenewalCents, &m.RevenueByType.RefundCents)
}

func (r *SQLiteRollupRepository) DeleteRange(ctx context.Context, tx *sql.Tx, siteID string, from, to string) error {
	tables := []string{"rollup_hourly", "rollup_daily", "rollup_dimension_hourly", "rollup_dimension_daily", "visitor_daily"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE site_id = ? AND date >= ? AND date < ?", table),
			siteID, from, to,
		); err != nil {
			return fmt.Errorf("delete range from %s: %w", table, err)
		}
	}
	return nil
}

func (r *SQLiteRollupRepository) DeleteDailyOlderThan(ctx context.Context, cutoff string, limit int) (int64, error) {
	var total int64
	for _, table := range []string{"rollup_daily", "rollup_dimension_daily", "visitor_daily"} {
		res, err := r.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE date < ? LIMIT ?)", table, table),
			cutoff, limit,
		)
		if err != nil {
			return total, fmt.Errorf("delete old rows from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *SQLiteRollupRepository) DeleteHourlyOlderThan(ctx context.Context, cutoff string, limit int) (int64, error) {
	var total int64
	for _, table := range []string{"rollup_hourly", "rollup_dimension_hourly"} {
		res, err := r.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE date < ? LIMIT ?)", table, table),
			cutoff, limit,
		)
		if err != nil {
			return total, fmt.Errorf("delete old rows from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
