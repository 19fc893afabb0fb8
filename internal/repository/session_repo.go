package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// SQLiteSessionRepository is a SessionRepository backed by SQLite/libsql.
//
// SQLite has no SELECT ... FOR UPDATE or custom isolation levels. The row
// lock §4.4 requires is emulated the way the teacher's job queue claims
// work: the caller opens tx with BeginWriteTx and writes before calling
// Lock (the raw-event insert, then TryInsert). That first write takes
// SQLite's reserved write lock for the rest of the transaction, so the
// read in Lock and the write in Update are already serialized against
// every other writer by the time Lock executes.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository constructs a SQLiteSessionRepository.
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) TryInsert(ctx context.Context, tx *sql.Tx, s *models.Session) (bool, error) {
	ctxJSON, err := json.Marshal(s.FirstNormalized)
	if err != nil {
		return false, fmt.Errorf("marshal session context: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (site_id, session_id, visitor_id, first_timestamp, last_timestamp,
			pageviews, first_normalized, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, session_id, visitor_id) DO NOTHING
	`, s.SiteID, s.SessionID, s.VisitorID, s.FirstTimestamp, s.LastTimestamp,
		s.Pageviews, string(ctxJSON), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteSessionRepository) Lock(ctx context.Context, tx *sql.Tx, siteID, sessionID, visitorID string) (*models.Session, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT site_id, session_id, visitor_id, first_timestamp, last_timestamp, pageviews,
			first_normalized, created_at, updated_at
		FROM sessions
		WHERE site_id = ? AND session_id = ? AND visitor_id = ?
	`, siteID, sessionID, visitorID)

	var s models.Session
	var ctxJSON string
	if err := row.Scan(&s.SiteID, &s.SessionID, &s.VisitorID, &s.FirstTimestamp, &s.LastTimestamp,
		&s.Pageviews, &ctxJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if err := json.Unmarshal([]byte(ctxJSON), &s.FirstNormalized); err != nil {
		return nil, fmt.Errorf("unmarshal session context: %w", err)
	}
	return &s, nil
}

func (r *SQLiteSessionRepository) Update(ctx context.Context, tx *sql.Tx, s *models.Session) error {
	ctxJSON, err := json.Marshal(s.FirstNormalized)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET first_timestamp = ?, last_timestamp = ?, pageviews = ?, first_normalized = ?, updated_at = ?
		WHERE site_id = ? AND session_id = ? AND visitor_id = ?
	`, s.FirstTimestamp, s.LastTimestamp, s.Pageviews, string(ctxJSON), s.UpdatedAt,
		s.SiteID, s.SessionID, s.VisitorID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE rowid IN (
			SELECT rowid FROM sessions WHERE last_timestamp < ? LIMIT ?
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return res.RowsAffected()
}
