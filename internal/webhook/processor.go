package webhook

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/lanternmetrics/ingest-core/internal/crypto"
	"github.com/lanternmetrics/ingest-core/internal/ingest"
	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
)

var encryptedMetadataFields = []string{"email", "name", "user_id", "customer_id"}

// Processor turns a ParsedPayment into the Payment row, the two derived
// raw events (`:payment` and `:goal`), and their rollup applications, all
// within one transaction.
type Processor struct {
	repos     *repository.Repositories
	encryptor *crypto.Encryptor
}

// NewProcessor constructs a Processor. encryptor may be nil, in which case
// sensitive metadata fields are stored in plaintext (used only when a site
// has no revenue provider key configured).
func NewProcessor(repos *repository.Repositories, encryptor *crypto.Encryptor) *Processor {
	return &Processor{repos: repos, encryptor: encryptor}
}

// Process persists p for site, applying the dedupe keys and rollup
// deltas described in §4.6. nowMs is the server receive time, used both
// for CreatedAt stamps and as the raw event timestamp.
func (p *Processor) Process(ctx context.Context, site *models.Site, payment ParsedPayment, nowMs int64) (deduped bool, err error) {
	tx, err := repository.BeginWriteTx(ctx, p.repos.DB)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	paymentRow := &models.Payment{
		ID: ulid.Make().String(), SiteID: site.ID, TransactionID: payment.TransactionID,
		Provider: site.RevenueProvider, EventType: payment.EventType, AmountCents: payment.AmountCents,
		Currency: payment.Currency, VisitorID: payment.VisitorID, CustomerID: payment.CustomerID,
		Email: payment.Email, CreatedAt: nowMs,
	}
	paymentDeduped, err := p.repos.Payments.Insert(ctx, tx, paymentRow)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	if paymentDeduped {
		return true, tx.Commit()
	}

	metadata, err := p.sensitiveMetadata(payment)
	if err != nil {
		return false, fmt.Errorf("encrypt metadata: %w", err)
	}

	attribution, err := p.attributionSnapshot(ctx, site.ID, payment.VisitorID)
	if err != nil {
		return false, fmt.Errorf("attribution snapshot: %w", err)
	}
	if attribution != nil {
		metadata["attribution"] = attribution
	}

	paymentEvent := &models.RawEvent{
		ID: ulid.Make().String(), SiteID: site.ID, EventID: payment.EventID + ":payment",
		Type: models.EventTypePayment, VisitorID: payment.VisitorID, Timestamp: nowMs,
		Metadata: metadata, Normalized: map[string]any{}, CreatedAt: nowMs,
	}
	paymentEventDeduped, err := p.repos.Events.InsertEvent(ctx, tx, paymentEvent)
	if err != nil {
		return false, fmt.Errorf("insert payment raw event: %w", err)
	}

	goalName := "payment"
	if payment.AmountCents <= 0 {
		goalName = "free_trial"
	}
	goalEvent := &models.RawEvent{
		ID: ulid.Make().String(), SiteID: site.ID, EventID: payment.EventID + ":goal",
		Type: models.EventTypeGoal, Name: goalName, VisitorID: payment.VisitorID, Timestamp: nowMs,
		Metadata: metadata, Normalized: map[string]any{}, CreatedAt: nowMs,
	}
	goalEventDeduped, err := p.repos.Events.InsertEvent(ctx, tx, goalEvent)
	if err != nil {
		return false, fmt.Errorf("insert goal raw event: %w", err)
	}

	if !paymentEventDeduped {
		revenueDelta := revenueDeltaFor(payment)
		if err := ingest.ApplyOverall(ctx, tx, p.repos.Rollups, site.ID, nowMs, revenueDelta); err != nil {
			return false, fmt.Errorf("apply revenue rollup: %w", err)
		}
	}
	if !goalEventDeduped {
		if err := ingest.ApplyGoalMetrics(ctx, tx, p.repos.Rollups, site.ID, goalName, nowMs, models.MetricVector{Goals: 1}); err != nil {
			return false, fmt.Errorf("apply goal rollup: %w", err)
		}
	}

	return false, tx.Commit()
}

func revenueDeltaFor(payment ParsedPayment) models.MetricVector {
	m := models.MetricVector{RevenueCents: payment.AmountCents}
	switch payment.EventType {
	case models.PaymentEventNew:
		m.RevenueByType.NewCents = payment.AmountCents
	case models.PaymentEventRenewal:
		m.RevenueByType.RenewalCents = payment.AmountCents
	case models.PaymentEventRefund:
		m.RevenueByType.RefundCents = payment.AmountCents
	}
	return m
}

// attributionSnapshot attaches the latest pageview's id/timestamp/normalized
// context for (siteId, visitorId), if one exists.
func (p *Processor) attributionSnapshot(ctx context.Context, siteID, visitorID string) (map[string]any, error) {
	if visitorID == "" {
		return nil, nil
	}
	latest, err := p.repos.Events.FindLatestPageview(ctx, siteID, visitorID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return map[string]any{
		"eventId":    latest.ID,
		"timestamp":  latest.Timestamp,
		"normalized": latest.Normalized,
	}, nil
}

// sensitiveMetadata builds the payment event's metadata map, encrypting
// email/name/user_id/customer_id at rest per §4.6.
func (p *Processor) sensitiveMetadata(payment ParsedPayment) (map[string]any, error) {
	raw := map[string]string{
		"email": payment.Email, "name": payment.Name,
		"user_id": payment.UserID, "customer_id": payment.CustomerID,
	}
	out := map[string]any{}
	for _, field := range encryptedMetadataFields {
		val := raw[field]
		if val == "" {
			continue
		}
		if p.encryptor == nil {
			out[field] = val
			continue
		}
		enc, err := p.encryptor.Encrypt(val)
		if err != nil {
			return nil, err
		}
		out[field] = enc
	}
	return out, nil
}
