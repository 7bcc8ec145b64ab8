// Package handlers serves the notifier's health, status and metrics endpoints.
package handlers

import (
	"net/http"
)

// HealthHandler handles HTTP requests to the /health endpoint.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
