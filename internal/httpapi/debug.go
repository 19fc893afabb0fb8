package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lanternmetrics/ingest-core/internal/models"
)

const defaultDebugLimit = 100

// handleDebugRollups implements GET /internal/rollups/{siteId}: a raw,
// paginated dump of hourly/daily rollup rows for a date range, gated
// behind the cron secret. Not the dashboard query API (still out of
// scope) — this exists for operators and integration tests to eyeball
// rollup state without a SQL client.
func (d *Deps) handleDebugRollups(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteId")
	q := r.URL.Query()

	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_field", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_field", "to must be YYYY-MM-DD")
		return
	}

	limit := defaultDebugLimit
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v < 10_000 {
		limit = v
	}
	hourly := q.Get("granularity") == "hourly"

	ctx := r.Context()
	var rows []models.RollupBucket
	truncated := false

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		if !hourly {
			if len(rows) >= limit {
				truncated = true
				break
			}
			bucket, err := d.Repos.Rollups.GetDaily(ctx, siteID, date.Format("2006-01-02"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "")
				return
			}
			rows = append(rows, bucket)
			continue
		}
		for hour := 0; hour < 24; hour++ {
			if len(rows) >= limit {
				truncated = true
				break
			}
			bucket, err := d.Repos.Rollups.GetHourly(ctx, siteID, date.Format("2006-01-02"), hour)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "")
				return
			}
			rows = append(rows, bucket)
		}
		if truncated {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "truncated": truncated})
}
