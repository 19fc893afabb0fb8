package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lanternmetrics/ingest-core/internal/apikey"
	"github.com/lanternmetrics/ingest-core/internal/normalize"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	"github.com/lanternmetrics/ingest-core/internal/validate"
	"github.com/lanternmetrics/ingest-core/internal/webhook"
)

// writeJSON writes body as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes the spec's {error,details?} error envelope.
func writeError(w http.ResponseWriter, status int, code, details string) {
	body := map[string]any{"error": code}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

// writeRetryAfter sets the Retry-After header (in whole seconds, rounded up)
// and writes the 429 body §6 requires.
func writeRetryAfter(w http.ResponseWriter, retryAfter int64) {
	w.Header().Set("Retry-After", itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{"retryAfter": retryAfter})
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// writePipelineError maps the typed errors C1/C2/C6 raise into the §7 error
// envelope, the one place status mapping happens so handlers never
// duplicate it.
func writePipelineError(w http.ResponseWriter, err error) {
	var rejected *validate.Rejected
	if errors.As(err, &rejected) {
		writeError(w, rejected.Status, rejected.Code, rejected.Reason)
		return
	}

	var tsRejected *normalize.TimestampRejected
	if errors.As(err, &tsRejected) {
		writeError(w, http.StatusBadRequest, "timestamp_rejected", tsRejected.Reason)
		return
	}

	var whRejected *webhook.Rejected
	if errors.As(err, &whRejected) {
		writeError(w, whRejected.Status, "invalid_webhook", whRejected.Reason)
		return
	}

	switch {
	case errors.Is(err, apikey.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "missing_token", "")
	case errors.Is(err, apikey.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "unknown_api_key", "")
	case errors.Is(err, repository.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "site_not_found", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
