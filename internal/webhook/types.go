// Package webhook implements C6: provider signature verification and
// translation of payment-provider webhook events into the same raw-event /
// rollup pipeline C3-C5 already provide.
package webhook

import "github.com/lanternmetrics/ingest-core/internal/models"

// ParsedPayment is the provider-agnostic shape both Stripe and
// Lemonsqueezy webhooks are reduced to before they enter the pipeline.
type ParsedPayment struct {
	EventID       string // provider's event/webhook id, used for the dedup suffix keys
	TransactionID string
	EventType     models.PaymentEventType
	AmountCents   int64
	Currency      string
	CustomerID    string
	Email         string
	Name          string
	VisitorID     string // from meta.custom_data.{ezlytics,datafast}_visitor_id
	UserID        string
}

// Rejected is returned for any webhook that cannot be processed; Status is
// the HTTP status the caller should respond with.
type Rejected struct {
	Status int
	Reason string
}

func (r *Rejected) Error() string { return r.Reason }
