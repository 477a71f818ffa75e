package middleware

import (
	"encoding/json"
	"net/http"
)

// writeDenial matches the API's error body so clients parse one shape.
func writeDenial(w http.ResponseWriter, status int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "reason": reason})
}
