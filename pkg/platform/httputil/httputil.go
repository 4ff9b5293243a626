// Package httputil provides the JSON response helpers shared by all HTTP
// handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"audittrail/pkg/platform/sentinel"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a service error onto an HTTP status and a JSON error
// body. Internal errors never leak their message to the client.
func WriteError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "internal_error"
		detail string
	)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		status, code, detail = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, sentinel.ErrInvalidInput):
		status, code, detail = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, sentinel.ErrConflict):
		status, code, detail = http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, sentinel.ErrUnavailable):
		status, code, detail = http.StatusServiceUnavailable, "unavailable", err.Error()
	}

	body := map[string]string{"error": code}
	if detail != "" {
		body["error_description"] = detail
	}
	WriteJSON(w, status, body)
}
