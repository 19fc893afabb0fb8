package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

func signLemonsqueezy(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyLemonsqueezySignature(t *testing.T) {
	body := []byte(`{"meta":{"event_name":"order_created"}}`)
	sig := signLemonsqueezy(body, "whsec")
	if !VerifyLemonsqueezySignature(body, sig, "whsec") {
		t.Fatal("VerifyLemonsqueezySignature() = false, want true for a correctly signed body")
	}
	if VerifyLemonsqueezySignature(body, sig, "wrong-secret") {
		t.Fatal("VerifyLemonsqueezySignature() = true, want false for the wrong secret")
	}
}

func TestParseLemonsqueezy_OrderCreated(t *testing.T) {
	body := []byte(`{
		"meta": {"event_name": "order_created", "custom_data": {"ezlytics_visitor_id": "v1"}},
		"data": {"id": "order_1", "attributes": {"currency": "usd", "total": 1999, "customer_id": 42, "user_email": "a@b.com"}}
	}`)
	sig := signLemonsqueezy(body, "whsec")

	payment, err := ParseLemonsqueezy(body, sig, "whsec")
	if err != nil {
		t.Fatalf("ParseLemonsqueezy() error = %v", err)
	}
	if payment.EventType != models.PaymentEventNew || payment.AmountCents != 1999 || payment.VisitorID != "v1" {
		t.Fatalf("payment = %+v, unexpected fields", payment)
	}
}

func TestParseLemonsqueezy_MissingVisitorIDRejected(t *testing.T) {
	body := []byte(`{"meta":{"event_name":"order_created","custom_data":{}},"data":{"id":"order_1","attributes":{}}}`)
	sig := signLemonsqueezy(body, "whsec")

	_, err := ParseLemonsqueezy(body, sig, "whsec")
	if err == nil {
		t.Fatal("ParseLemonsqueezy() error = nil, want rejection for missing visitor id")
	}
}

func TestParseLemonsqueezy_InvalidSignatureRejected(t *testing.T) {
	body := []byte(`{"meta":{"event_name":"order_created"}}`)
	_, err := ParseLemonsqueezy(body, "deadbeef", "whsec")
	if err == nil {
		t.Fatal("ParseLemonsqueezy() error = nil, want signature rejection")
	}
}

func TestParseLemonsqueezy_UnsupportedEventReturnsNil(t *testing.T) {
	body := []byte(`{"meta":{"event_name":"subscription_created","custom_data":{"ezlytics_visitor_id":"v1"}},"data":{"id":"x","attributes":{}}}`)
	sig := signLemonsqueezy(body, "whsec")

	payment, err := ParseLemonsqueezy(body, sig, "whsec")
	if err != nil {
		t.Fatalf("ParseLemonsqueezy() error = %v", err)
	}
	if payment != nil {
		t.Fatalf("payment = %+v, want nil for an unsupported event", payment)
	}
}
