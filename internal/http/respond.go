package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes payload as the response body under the given status.
// Encoding failures are ignored: the header is already out and every
// payload handed in here is marshalable.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the error envelope used by the JSON endpoints.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
