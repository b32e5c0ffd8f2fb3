package handlers

import (
	"net/http"

	"github.com/fluxgate/fluxgate/internal/version"
)

// HealthHandler reports liveness plus build information.
// GET /healthz
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
			"commit":  version.Commit,
			"built":   version.BuildTime,
		})
	}
}
