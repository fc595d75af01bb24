package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrGameNotFound),
		errors.Is(err, model.ErrResultNotFound),
		errors.Is(err, model.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidSelection), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrEvaluatorUnavailable), errors.Is(err, model.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	rid := GetRequestID(r.Context())
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("rid", rid).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSONStatus(w, status, ErrorResponse{Error: err.Error(), RequestID: rid})
}
