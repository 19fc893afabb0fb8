package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

// eventTypeForOrder maps a Lemon Squeezy order_created event per §4.6:
// refunded==true ⇒ refund, else new.
func eventTypeForOrder(refunded bool) models.PaymentEventType {
	if refunded {
		return models.PaymentEventRefund
	}
	return models.PaymentEventNew
}

// eventTypeForSubscriptionPayment maps subscription_payment_success ⇒ renewal.
func eventTypeForSubscriptionPayment() models.PaymentEventType {
	return models.PaymentEventRenewal
}

// lemonsqueezyEvent is the subset of a Lemon Squeezy webhook envelope this
// processor understands; lemonsqueezy does not publish a Go SDK, so the
// payload is decoded against the documented JSON shape directly.
type lemonsqueezyEvent struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			OrderID         *int64  `json:"order_id"`
			Identifier      string  `json:"identifier"`
			CustomerID      int64   `json:"customer_id"`
			UserEmail       string  `json:"user_email"`
			UserName        string  `json:"user_name"`
			Currency        string  `json:"currency"`
			Total           int64   `json:"total"`
			Subtotal        int64   `json:"subtotal"`
			Refunded        bool    `json:"refunded"`
			RefundedAmount  int64   `json:"refunded_amount"`
			Status          string  `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// VerifyLemonsqueezySignature checks body's HMAC-SHA256 (hex-encoded)
// against the X-Signature header using a constant-time comparison.
func VerifyLemonsqueezySignature(body []byte, signatureHeader, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// ParseLemonsqueezy verifies body's signature, then reduces the event to a
// ParsedPayment. Unsupported event names return nil with no error.
func ParseLemonsqueezy(body []byte, signatureHeader, secret string) (*ParsedPayment, error) {
	if !VerifyLemonsqueezySignature(body, signatureHeader, secret) {
		return nil, &Rejected{Status: http.StatusBadRequest, Reason: "invalid lemonsqueezy signature"}
	}

	var event lemonsqueezyEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("unmarshal lemonsqueezy event: %w", err)
	}
	if event.Meta.EventName != "order_created" && event.Meta.EventName != "subscription_payment_success" {
		return nil, nil
	}

	visitorID := firstMeta(event.Meta.CustomData, visitorIDKeyEzlytics, visitorIDKeyDatafast)
	if visitorID == "" {
		return nil, &Rejected{Status: http.StatusBadRequest, Reason: "missing visitor attribution key"}
	}

	switch event.Meta.EventName {
	case "order_created":
		return parseLemonsqueezyOrder(event, visitorID)
	case "subscription_payment_success":
		return parseLemonsqueezySubscriptionPayment(event, visitorID)
	default:
		return nil, nil
	}
}

func parseLemonsqueezyOrder(event lemonsqueezyEvent, visitorID string) (*ParsedPayment, error) {
	attrs := event.Data.Attributes
	eventType := eventTypeForOrder(attrs.Refunded)
	amount := attrs.Total
	if attrs.Refunded {
		amount = attrs.RefundedAmount
	}
	return &ParsedPayment{
		EventID: event.Data.ID, TransactionID: event.Data.ID, EventType: eventType,
		AmountCents: amount, Currency: attrs.Currency,
		CustomerID: fmt.Sprintf("%d", attrs.CustomerID), Email: attrs.UserEmail, Name: attrs.UserName,
		VisitorID: visitorID, UserID: event.Meta.CustomData["user_id"],
	}, nil
}

func parseLemonsqueezySubscriptionPayment(event lemonsqueezyEvent, visitorID string) (*ParsedPayment, error) {
	attrs := event.Data.Attributes
	return &ParsedPayment{
		EventID: event.Data.ID, TransactionID: event.Data.ID, EventType: eventTypeForSubscriptionPayment(),
		AmountCents: attrs.Subtotal, Currency: attrs.Currency,
		CustomerID: fmt.Sprintf("%d", attrs.CustomerID), Email: attrs.UserEmail, Name: attrs.UserName,
		VisitorID: visitorID, UserID: event.Meta.CustomData["user_id"],
	}, nil
}
