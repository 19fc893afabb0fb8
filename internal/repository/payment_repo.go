package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// SQLitePaymentRepository is a PaymentRepository backed by SQLite/libsql.
type SQLitePaymentRepository struct {
	db *sql.DB
}

// NewSQLitePaymentRepository constructs a SQLitePaymentRepository.
func NewSQLitePaymentRepository(db *sql.DB) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{db: db}
}

func (r *SQLitePaymentRepository) Insert(ctx context.Context, tx *sql.Tx, p *models.Payment) (bool, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, site_id, transaction_id, provider, event_type, amount_cents,
			currency, visitor_id, customer_id, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SiteID, p.TransactionID, string(p.Provider), string(p.EventType), p.AmountCents,
		p.Currency, p.VisitorID, p.CustomerID, p.Email, p.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return true, nil
		}
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return false, nil
}
