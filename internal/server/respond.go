// internal/server/respond.go
package server

import (
	"encoding/json"
	"net/http"

	"adreel/internal/common/errors"
	"adreel/internal/common/logger"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError normalizes err and writes the standard error envelope with the
// HTTP status mapped from its code.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, operation string, err error) {
	stdErr := errors.Normalize(r.Context(), operation, err)

	log.Error("request failed", map[string]interface{}{
		"operation": operation,
		"path":      r.URL.Path,
		"errorCode": string(stdErr.Code),
		"error":     stdErr.Message,
		"details":   stdErr.Details,
	})

	body := map[string]interface{}{
		"error": stdErr.Message,
		"code":  string(stdErr.Code),
	}
	if stdErr.Details != "" {
		body["details"] = stdErr.Details
	}
	writeJSON(w, stdErr.HTTPStatus(), body)
}
