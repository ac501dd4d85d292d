package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"smartbudget/internal/assistant"
	"smartbudget/internal/budget"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

type foundResponse struct {
	Found bool `json:"found"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrMissingDate),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, budget.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged; their
// text is not sent to the client.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op, log.FieldError, err, log.FieldStatusCode, status)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}
