package httpapi

import (
	"database/sql"
	"net/http"
)

// handleLivez is the liveness probe: 200 as long as the process is running,
// mirroring the teacher's Livez handler.
func handleLivez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReadyz is the readiness probe: 200 only if the database responds to
// a ping, mirroring the teacher's ReadyzHandler.
func handleReadyz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database_unavailable", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
