package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lanternmetrics/ingest-core/internal/ingest"
	"github.com/lanternmetrics/ingest-core/internal/metrics"
	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	"github.com/lanternmetrics/ingest-core/internal/validate"
)

// goalRequest is the §6 goals endpoint body.
type goalRequest struct {
	DatafastVisitorID string         `json:"datafast_visitor_id"`
	Name              string         `json:"name"`
	Metadata          map[string]any `json:"metadata"`
}

// handleGoals implements POST /api/v1/goals: Bearer API key, 409 without a
// prior pageview for the visitor, dedupe via x-idempotency-key.
func (d *Deps) handleGoals(w http.ResponseWriter, r *http.Request) {
	site, err := d.Resolver.Resolve(r.Context(), r)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, validate.MaxPayloadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	var req goalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "body must be a JSON object")
		return
	}
	req.DatafastVisitorID = strings.TrimSpace(req.DatafastVisitorID)
	req.Name = strings.TrimSpace(req.Name)
	if req.DatafastVisitorID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "datafast_visitor_id and name are required")
		return
	}

	ctx := r.Context()
	latest, err := d.Repos.Events.FindLatestPageview(ctx, site.ID, req.DatafastVisitorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if latest == nil {
		writeError(w, http.StatusConflict, "no_prior_pageview", "visitor has no prior pageview")
		return
	}

	ip := clientIP(r)
	nowMs := time.Now().UnixMilli()
	if allowed, retryAfter := d.Limiter.Allow("goals", site.ID, ip, nowMs); !allowed {
		metrics.RateLimitRejectsTotal.WithLabelValues("goals").Inc()
		writeRetryAfter(w, int64(retryAfter/time.Second)+1)
		return
	}

	eventID := strings.TrimSpace(r.Header.Get("x-idempotency-key"))

	tx, err := repository.BeginWriteTx(ctx, d.Repos.DB)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	defer tx.Rollback()

	event := &models.RawEvent{
		ID: ulid.Make().String(), SiteID: site.ID, EventID: eventID,
		Type: models.EventTypeGoal, Name: req.Name, VisitorID: req.DatafastVisitorID,
		Timestamp: nowMs, Metadata: req.Metadata, Normalized: latest.Normalized, CreatedAt: nowMs,
	}
	deduped, err := d.Repos.Events.InsertEvent(ctx, tx, event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if !deduped {
		if err := ingest.ApplyGoalMetrics(ctx, tx, d.Repos.Rollups, site.ID, req.Name, nowMs, models.MetricVector{Goals: 1}); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}
	}
	if err := tx.Commit(); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	metrics.IngestRequestsTotal.WithLabelValues("goal", fmt.Sprint(deduped)).Inc()

	out := map[string]any{"ok": true}
	if deduped {
		out["deduped"] = true
	}
	writeJSON(w, http.StatusOK, out)
}
