package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Error kinds surfaced to clients. Backing-store and crypto failures are
// collapsed into KindInternal with a generic message; details stay in logs.
const (
	KindValidation   = "Validation"
	KindUnauthorized = "Unauthorized"
	KindBadRequest   = "BadRequest"
	KindRateLimited  = "RateLimited"
	KindInternal     = "Internal"
)

// ErrorResponse is the standard error body: a machine-readable kind plus a
// human-readable message.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// RespondError sends a {kind, message} error body with the given status code.
func RespondError(w http.ResponseWriter, kind, message string, statusCode int) {
	RespondJSON(w, ErrorResponse{Kind: kind, Message: message}, statusCode)
}
