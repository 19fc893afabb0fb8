package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

const (
	visitorIDKeyEzlytics = "ezlytics_visitor_id"
	visitorIDKeyDatafast = "datafast_visitor_id"
)

// ParseStripe verifies body against sigHeader using secret (Stripe's
// timestamp+v1 HMAC-SHA256 scheme, within a five-minute tolerance), then
// reduces the event to a ParsedPayment. Unsupported event types return nil
// with no error, signaling the caller to 200 without side effects.
func ParseStripe(body []byte, sigHeader, secret string) (*ParsedPayment, error) {
	event, err := webhook.ConstructEvent(body, sigHeader, secret)
	if err != nil {
		return nil, &Rejected{Status: http.StatusBadRequest, Reason: fmt.Sprintf("invalid stripe signature: %v", err)}
	}

	switch event.Type {
	case "checkout.session.completed":
		return parseStripeCheckoutSession(event)
	case "invoice.paid":
		return parseStripeInvoice(event)
	case "charge.refunded":
		return parseStripeRefund(event)
	default:
		return nil, nil
	}
}

func parseStripeCheckoutSession(event stripe.Event) (*ParsedPayment, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal checkout session: %w", err)
	}
	visitorID := firstMeta(session.Metadata, visitorIDKeyEzlytics, visitorIDKeyDatafast)
	if visitorID == "" {
		return nil, &Rejected{Status: http.StatusBadRequest, Reason: "missing visitor attribution key"}
	}
	return &ParsedPayment{
		EventID: event.ID, TransactionID: session.ID, EventType: models.PaymentEventNew,
		AmountCents: session.AmountTotal, Currency: strings.ToLower(string(session.Currency)),
		CustomerID: customerID(session.Customer), Email: session.CustomerDetails.Email,
		VisitorID: visitorID, UserID: session.Metadata["user_id"],
	}, nil
}

func parseStripeInvoice(event stripe.Event) (*ParsedPayment, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}
	meta := invoice.Metadata
	if invoice.Subscription != nil && invoice.Subscription.Metadata != nil {
		meta = invoice.Subscription.Metadata
	}
	visitorID := firstMeta(meta, visitorIDKeyEzlytics, visitorIDKeyDatafast)
	if visitorID == "" {
		return nil, &Rejected{Status: http.StatusBadRequest, Reason: "missing visitor attribution key"}
	}
	return &ParsedPayment{
		EventID: event.ID, TransactionID: invoice.ID, EventType: models.PaymentEventRenewal,
		AmountCents: invoice.AmountPaid, Currency: strings.ToLower(string(invoice.Currency)),
		CustomerID: customerID(invoice.Customer), Email: invoice.CustomerEmail,
		VisitorID: visitorID, UserID: meta["user_id"],
	}, nil
}

func parseStripeRefund(event stripe.Event) (*ParsedPayment, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("unmarshal charge: %w", err)
	}
	visitorID := firstMeta(charge.Metadata, visitorIDKeyEzlytics, visitorIDKeyDatafast)
	if visitorID == "" {
		return nil, &Rejected{Status: http.StatusBadRequest, Reason: "missing visitor attribution key"}
	}
	return &ParsedPayment{
		EventID: event.ID, TransactionID: charge.ID, EventType: models.PaymentEventRefund,
		AmountCents: charge.AmountRefunded, Currency: strings.ToLower(string(charge.Currency)),
		CustomerID: customerID(charge.Customer), VisitorID: visitorID,
	}, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func firstMeta(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}

