package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// StandardError is the JSON shape every handler failure returns, matching
// the request-id-tagged error envelope format used across this module's
// tooling.
type StandardError struct {
	Status    int            `json:"status"`
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, code string, message string, statusCode int, details map[string]any) {
	requestID, _ := r.Context().Value(requestIDKey).(string)

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(statusCode)

	log.Warn("api error response",
		zap.String("requestId", requestID),
		zap.String("code", code),
		zap.Int("status", statusCode),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))

	if err := json.NewEncoder(w).Encode(StandardError{Status: statusCode, Message: message, Code: code, Details: details}); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeNotFound(w http.ResponseWriter, r *http.Request, log *zap.Logger, resource string) {
	writeError(w, r, log, "NOT_FOUND", resource+" not found", http.StatusNotFound, nil)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, log *zap.Logger, message string) {
	writeError(w, r, log, "VALIDATION_ERROR", message, http.StatusBadRequest, nil)
}

func writeInternalError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	writeError(w, r, log, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError, nil)
}

func writeJSON(w http.ResponseWriter, r *http.Request, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("api: failed to encode response", zap.Error(err), zap.String("path", r.URL.Path))
	}
}
