// Package api is the HTTP and WebSocket surface: planning and cycle
// endpoints, session views, the sandboxed preview page, and the runtime
// report relay from inside the iframe back onto the session.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gamesmith/internal/store"
	"gamesmith/internal/types"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteFault maps an error from the core onto an HTTP status. Fault classes
// carry the intent: invalid input is the caller's fault, conflict means the
// session is busy, rate_limited and unavailable mean try again later.
func WriteFault(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	switch types.ClassOf(err) {
	case types.ClassInvalid:
		Error(w, http.StatusBadRequest, err.Error())
	case types.ClassConflict:
		Error(w, http.StatusConflict, err.Error())
	case types.ClassRateLimited:
		Error(w, http.StatusTooManyRequests, err.Error())
	case types.ClassUnavailable:
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
