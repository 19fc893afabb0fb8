package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lanternmetrics/ingest-core/internal/metrics"
	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	"github.com/lanternmetrics/ingest-core/internal/webhook"
)

const maxWebhookBodyBytes = 256 * 1024

// handleWebhook implements POST /api/webhooks/{provider}/{websiteId}: C6
// signature verification followed by C3/C5 application via webhook.Processor.
func (d *Deps) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	websiteID := chi.URLParam(r, "websiteId")

	site, err := d.Repos.Sites.GetByWebsiteID(r.Context(), websiteID)
	if errors.Is(err, repository.ErrSiteNotFound) {
		writeError(w, http.StatusNotFound, "site_not_found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil || len(body) > maxWebhookBodyBytes {
		writeError(w, http.StatusBadRequest, "invalid_payload", "")
		return
	}

	var parsed *webhook.ParsedPayment
	switch provider {
	case "stripe":
		secret := d.webhookSecret(site, models.RevenueProviderStripe, d.Cfg.StripeWebhookSecret)
		if secret == "" {
			writeError(w, http.StatusInternalServerError, "secret_not_configured", "")
			return
		}
		parsed, err = webhook.ParseStripe(body, r.Header.Get("Stripe-Signature"), secret)
	case "lemonsqueezy":
		secret := d.webhookSecret(site, models.RevenueProviderLemonsqueezy, d.Cfg.LemonsqueezyWebhookSecret)
		if secret == "" {
			writeError(w, http.StatusInternalServerError, "secret_not_configured", "")
			return
		}
		parsed, err = webhook.ParseLemonsqueezy(body, r.Header.Get("X-Signature"), secret)
	default:
		writeError(w, http.StatusNotFound, "unknown_provider", "")
		return
	}
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if parsed == nil {
		// Unsupported/irrelevant event type for this provider: ack without
		// side effects so the provider does not retry.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	deduped, err := d.Processor.Process(r.Context(), site, *parsed, time.Now().UnixMilli())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	metrics.WebhooksProcessedTotal.WithLabelValues(provider, strconv.FormatBool(deduped)).Inc()

	out := map[string]any{"ok": true}
	if deduped {
		out["deduped"] = true
	}
	writeJSON(w, http.StatusOK, out)
}

// webhookSecret prefers the site's own configured secret, falling back to a
// process-wide default for single-tenant deployments.
func (d *Deps) webhookSecret(site *models.Site, provider models.RevenueProvider, fallback string) string {
	if site.RevenueProvider == provider && site.RevenueWebhookSecret != "" {
		return site.RevenueWebhookSecret
	}
	return fallback
}
