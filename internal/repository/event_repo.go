package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// SQLiteEventRepository is an EventRepository backed by SQLite/libsql.
type SQLiteEventRepository struct {
	db *sql.DB
}

// NewSQLiteEventRepository constructs a SQLiteEventRepository.
func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) InsertEvent(ctx context.Context, tx *sql.Tx, e *models.RawEvent) (bool, error) {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	normalizedJSON, err := json.Marshal(e.Normalized)
	if err != nil {
		return false, fmt.Errorf("marshal normalized: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO raw_events (id, site_id, event_id, type, name, visitor_id, session_id,
			timestamp, metadata, normalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SiteID, e.EventID, string(e.Type), e.Name, e.VisitorID, e.SessionID,
		e.Timestamp, string(metadataJSON), string(normalizedJSON), e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return true, nil
		}
		return false, fmt.Errorf("insert raw event: %w", err)
	}
	return false, nil
}

func (r *SQLiteEventRepository) FindLatestPageview(ctx context.Context, siteID, visitorID string) (*models.RawEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, site_id, event_id, type, name, visitor_id, session_id, timestamp, metadata, normalized, created_at
		FROM raw_events
		WHERE site_id = ? AND visitor_id = ? AND type = 'pageview'
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, siteID, visitorID)

	e, err := scanRawEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *SQLiteEventRepository) StreamRange(ctx context.Context, siteID string, from, to int64, fn func(models.RawEvent) error) error {
	query := `
		SELECT id, site_id, event_id, type, name, visitor_id, session_id, timestamp, metadata, normalized, created_at
		FROM raw_events
		WHERE created_at >= ? AND created_at < ?`
	args := []any{from, to}
	if siteID != "" {
		query += " AND site_id = ?"
		args = append(args, siteID)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query raw events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanRawEventRows(rows)
		if err != nil {
			return err
		}
		if err := fn(*e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *SQLiteEventRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM raw_events WHERE id IN (
			SELECT id FROM raw_events WHERE created_at < ? LIMIT ?
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete raw events: %w", err)
	}
	return res.RowsAffected()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRawEvent(row *sql.Row) (*models.RawEvent, error) {
	return scanRawEventScannable(row)
}

func scanRawEventRows(rows *sql.Rows) (*models.RawEvent, error) {
	return scanRawEventScannable(rows)
}

func scanRawEventScannable(s scannable) (*models.RawEvent, error) {
	var e models.RawEvent
	var eventType string
	var metadataJSON, normalizedJSON string
	if err := s.Scan(&e.ID, &e.SiteID, &e.EventID, &eventType, &e.Name, &e.VisitorID, &e.SessionID,
		&e.Timestamp, &metadataJSON, &normalizedJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = models.EventType(eventType)
	if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(normalizedJSON), &e.Normalized); err != nil {
		return nil, fmt.Errorf("unmarshal normalized: %w", err)
	}
	return &e, nil
}

// isDuplicateKeyError matches the error strings libsql/SQLite raise on a
// UNIQUE constraint violation, independent of driver-specific error types.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") || strings.Contains(msg, "already exists")
}
