// Package repository implements the SQLite/libsql-backed persistence layer
// for sites, raw events, sessions, payments and rollup cubes.
package repository

import (
	"context"
	"database/sql"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// SiteRepository manages tenant records.
type SiteRepository interface {
	Create(ctx context.Context, site *models.Site) error
	GetByID(ctx context.Context, id string) (*models.Site, error)
	GetByWebsiteID(ctx context.Context, websiteID string) (*models.Site, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Site, error)
}

// EventRepository persists immutable raw events and supports the streaming
// read used by the Rebuilder.
type EventRepository interface {
	// InsertEvent inserts e within tx. If e.EventID is non-empty and a row
	// with the same (siteId, eventId) already exists, it is a no-op and
	// deduped is true.
	InsertEvent(ctx context.Context, tx *sql.Tx, e *models.RawEvent) (deduped bool, err error)
	// FindLatestPageview returns the most recent pageview RawEvent for
	// (siteId, visitorId), or nil if none exists.
	FindLatestPageview(ctx context.Context, siteID, visitorID string) (*models.RawEvent, error)
	// StreamRange invokes fn for every RawEvent with timestamp (createdAt) in
	// [from, to), ordered by (createdAt, id), optionally scoped to one site.
	StreamRange(ctx context.Context, siteID string, from, to int64, fn func(models.RawEvent) error) error
	// DeleteOlderThan deletes RawEvent rows with createdAt < cutoff, at most
	// limit rows per call (bounded work for RetentionGC).
	DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error)
}

// SessionRepository maintains the per-(site,session,visitor) session state
// machine described in §4.4.
type SessionRepository interface {
	// TryInsert attempts to create a new session row with conflict-do-nothing
	// semantics on the composite primary key. inserted is false if a row
	// already existed.
	TryInsert(ctx context.Context, tx *sql.Tx, s *models.Session) (inserted bool, err error)
	// Lock reads the existing session row within tx. tx is expected to hold
	// SQLite's write lock already (taken by an earlier write in the same
	// transaction, such as TryInsert) so this read observes a consistent,
	// exclusively-held row for the remainder of the transaction.
	Lock(ctx context.Context, tx *sql.Tx, siteID, sessionID, visitorID string) (*models.Session, error)
	Update(ctx context.Context, tx *sql.Tx, s *models.Session) error
	// DeleteOlderThan deletes sessions whose lastTimestamp < cutoff, at most
	// limit rows per call.
	DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error)
}

// PaymentRepository persists payment-provider webhook events.
type PaymentRepository interface {
	// Insert inserts p within tx. deduped is true if (siteId, transactionId)
	// already existed.
	Insert(ctx context.Context, tx *sql.Tx, p *models.Payment) (deduped bool, err error)
}

// RollupRepository maintains the hourly/daily overall and dimensional
// rollup cubes plus the VisitorDaily membership set.
type RollupRepository interface {
	ApplyHourly(ctx context.Context, tx *sql.Tx, siteID, date string, hour int, delta models.MetricVector) error
	ApplyDaily(ctx context.Context, tx *sql.Tx, siteID, date string, delta models.MetricVector) error
	ApplyDimensionHourly(ctx context.Context, tx *sql.Tx, siteID, date string, hour int, dim models.Dimension, value string, delta models.MetricVector) error
	ApplyDimensionDaily(ctx context.Context, tx *sql.Tx, siteID, date string, dim models.Dimension, value string, delta models.MetricVector) error
	// TryMarkVisitorSeen records (siteId, date, visitorId) in VisitorDaily.
	// inserted is false if the visitor was already seen that day.
	TryMarkVisitorSeen(ctx context.Context, tx *sql.Tx, siteID, date, visitorID string, firstSeenAt int64) (inserted bool, err error)

	GetHourly(ctx context.Context, siteID, date string, hour int) (models.RollupBucket, error)
	GetDaily(ctx context.Context, siteID, date string) (models.RollupBucket, error)

	// DeleteRange deletes all rollup rows (hourly, daily, dimensional, and
	// visitor membership) with date in [from, to) for the given site,
	// within tx. Used by the Rebuilder before it re-inserts computed rows.
	DeleteRange(ctx context.Context, tx *sql.Tx, siteID string, from, to string) error

	DeleteDailyOlderThan(ctx context.Context, cutoff string, limit int) (int64, error)
	DeleteHourlyOlderThan(ctx context.Context, cutoff string, limit int) (int64, error)
}

// Repositories aggregates all repository implementations wired to a single
// database connection.
type Repositories struct {
	Sites     SiteRepository
	Events    EventRepository
	Sessions  SessionRepository
	Payments  PaymentRepository
	Rollups   RollupRepository
	RateLimit RateLimitRepository
	DB        *sql.DB
}

// NewRepositories constructs all repositories backed by db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Sites:     NewSQLiteSiteRepository(db),
		Events:    NewSQLiteEventRepository(db),
		Sessions:  NewSQLiteSessionRepository(db),
		Payments:  NewSQLitePaymentRepository(db),
		Rollups:   NewSQLiteRollupRepository(db),
		RateLimit: NewSQLiteRateLimitRepository(db),
		DB:        db,
	}
}
