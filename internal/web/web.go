// Package web holds the HTTP plumbing shared by the intake, gazetteer, and
// public API servers: JSON responses, CORS, compression, per-IP rate
// limiting, and access logging with User-Agent and GeoIP enrichment.
package web

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error body of the form {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
