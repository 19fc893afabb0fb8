package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// ErrSiteNotFound is returned when a site lookup finds no matching row.
var ErrSiteNotFound = errors.New("site not found")

// SQLiteSiteRepository is a SiteRepository backed by SQLite/libsql.
type SQLiteSiteRepository struct {
	db *sql.DB
}

// NewSQLiteSiteRepository constructs a SQLiteSiteRepository.
func NewSQLiteSiteRepository(db *sql.DB) *SQLiteSiteRepository {
	return &SQLiteSiteRepository{db: db}
}

func (r *SQLiteSiteRepository) Create(ctx context.Context, site *models.Site) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (id, website_id, api_key_hash, domain, timezone, revenue_provider,
			revenue_provider_key, revenue_webhook_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, site.ID, site.WebsiteID, site.APIKeyHash, site.Domain, site.Timezone, string(site.RevenueProvider),
		site.RevenueProviderKey, site.RevenueWebhookSecret, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

func (r *SQLiteSiteRepository) GetByID(ctx context.Context, id string) (*models.Site, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, siteSelectColumns+" WHERE id = ?", id))
}

func (r *SQLiteSiteRepository) GetByWebsiteID(ctx context.Context, websiteID string) (*models.Site, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, siteSelectColumns+" WHERE website_id = ?", websiteID))
}

func (r *SQLiteSiteRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Site, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, siteSelectColumns+" WHERE api_key_hash = ?", hash))
}

const siteSelectColumns = `
	SELECT id, website_id, api_key_hash, domain, timezone, revenue_provider,
		revenue_provider_key, revenue_webhook_secret, created_at, updated_at
	FROM sites`

func (r *SQLiteSiteRepository) scanOne(row *sql.Row) (*models.Site, error) {
	var s models.Site
	var provider string
	err := row.Scan(&s.ID, &s.WebsiteID, &s.APIKeyHash, &s.Domain, &s.Timezone, &provider,
		&s.RevenueProviderKey, &s.RevenueWebhookSecret, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	s.RevenueProvider = models.RevenueProvider(provider)
	return &s, nil
}
