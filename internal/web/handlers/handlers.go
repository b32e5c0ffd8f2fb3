// Package handlers contains the gateway's HTTP handlers. Each handler
// is a constructor taking its dependencies and returning an
// http.HandlerFunc.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/logging"
)

// requestID tags handler log lines with the middleware-assigned id so
// lines from one request can be grepped together.
func requestID(r *http.Request) string {
	return logging.GetRequestID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
