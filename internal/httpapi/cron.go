package httpapi

import (
	"net/http"
	"strconv"

	"github.com/lanternmetrics/ingest-core/internal/rebuild"
)

// handleCronRetention implements GET|POST /api/cron/retention: runs one
// RetentionGC pass on demand, independent of the background scheduler.
func (d *Deps) handleCronRetention(w http.ResponseWriter, r *http.Request) {
	result := d.GC.Run(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// handleCronRebuild implements GET|POST /api/cron/rollup-rebuild. Parameters
// (siteId?, from, to, dryRun, includeDiff) are read from the query string
// for GET and from either the query string or form-encoded body for POST;
// both dryRun/dry_run and includeDiff/include_diff spellings are accepted.
func (d *Deps) handleCronRebuild(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := r.Form.Get(k); v != "" {
				return v
			}
		}
		return ""
	}

	fromMs, err := strconv.ParseInt(get("from"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_field", "from is required (epoch-ms)")
		return
	}
	toMs, err := strconv.ParseInt(get("to"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_field", "to is required (epoch-ms)")
		return
	}

	req := rebuild.Request{
		SiteID:      get("siteId"),
		From:        rebuild.SnapToDayStart(fromMs),
		To:          rebuild.SnapToDayStart(toMs),
		DryRun:      parseBool(get("dryRun", "dry_run")),
		IncludeDiff: parseBool(get("includeDiff", "include_diff")),
	}

	result, err := d.Rebuilder.Run(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
