package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lanternmetrics/ingest-core/internal/apikey"
	"github.com/lanternmetrics/ingest-core/internal/ingest"
	"github.com/lanternmetrics/ingest-core/internal/metrics"
	"github.com/lanternmetrics/ingest-core/internal/normalize"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	"github.com/lanternmetrics/ingest-core/internal/validate"
)

// ingestPeek is the minimal subset of the request body needed to resolve a
// Site before the full §4.1 validation runs; malformed or missing fields
// here are re-detected (with proper error codes) by validate.Validate.
type ingestPeek struct {
	WebsiteID string `json:"websiteId"`
}

func (d *Deps) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, validate.MaxPayloadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if len(body) > validate.MaxPayloadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "body exceeds MAX_PAYLOAD_BYTES")
		return
	}

	var peek ingestPeek
	_ = json.Unmarshal(body, &peek)
	if peek.WebsiteID == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "websiteId is required")
		return
	}

	site, err := d.Repos.Sites.GetByWebsiteID(r.Context(), peek.WebsiteID)
	if errors.Is(err, repository.ErrSiteNotFound) {
		writeError(w, http.StatusUnauthorized, "unknown_site", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	ip := clientIP(r)
	nowMs := time.Now().UnixMilli()

	if allowed, retryAfter := d.Limiter.Allow("ingest", site.ID, ip, nowMs); !allowed {
		metrics.RateLimitRejectsTotal.WithLabelValues("ingest").Inc()
		writeRetryAfter(w, int64(retryAfter/time.Second)+1)
		return
	}

	serverKeyOK := serverKeyMatches(r, site.APIKeyHash)

	resp, err := d.Pipeline.Ingest(r.Context(), ingest.Request{
		Site: site, Body: body, Headers: r.Header, ClientIP: ip,
		ServerKeyOK: serverKeyOK, NowMs: nowMs,
	})
	if err != nil {
		metrics.IngestRejectsTotal.WithLabelValues(rejectCode(err)).Inc()
		writePipelineError(w, err)
		return
	}

	eventType := peekEventType(body)
	metrics.IngestRequestsTotal.WithLabelValues(eventType, strconv.FormatBool(resp.Deduped)).Inc()

	out := map[string]any{"ok": true}
	if resp.Deduped {
		out["deduped"] = true
	}
	if r.URL.Query().Get("debug") != "" {
		out["debug"] = map[string]any{
			"usedClientTimestamp": resp.UsedClientTimestamp,
			"clockSkewMs":         resp.ClockSkewMs,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func peekEventType(body []byte) string {
	var t struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(body, &t)
	if t.Type == "" {
		return "unknown"
	}
	return t.Type
}

func rejectCode(err error) string {
	var rejected *validate.Rejected
	if errors.As(err, &rejected) {
		return rejected.Code
	}
	var tsRejected *normalize.TimestampRejected
	if errors.As(err, &tsRejected) {
		return "timestamp_rejected"
	}
	return "internal_error"
}

// serverKeyMatches reports whether r carries a server key (header
// x-ingest-server-key or query secret) whose SHA-256 hash equals the
// site's configured API key hash.
func serverKeyMatches(r *http.Request, apiKeyHash string) bool {
	key := r.Header.Get("x-ingest-server-key")
	if key == "" {
		key = r.URL.Query().Get("secret")
	}
	if key == "" {
		return false
	}
	return apikey.Hash(key) == apiKeyHash
}

// clientIP returns the request's client address with any port stripped.
// chimw.RealIP has already rewritten r.RemoteAddr from X-Forwarded-For/
// X-Real-IP when those are present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
