// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/tetsy-ai/negotiation-platform/pkg/apierror"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeAPIError maps domain errors to HTTP responses. Conflict errors carry
// the current authoritative state so callers can reconcile.
func writeAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierror.As(err); ok {
		writeJSON(w, apiErr.StatusCode, apiErr)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
