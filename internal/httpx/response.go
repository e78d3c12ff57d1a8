// Package httpx holds the HTTP plumbing shared by the service handlers:
// the router, request logging and the JSON response envelope.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"foodhub/internal/logger"
	"foodhub/internal/models"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// StatusFor maps a domain error to its HTTP status and error code
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, models.ErrItemNotFound):
		return http.StatusUnprocessableEntity, "item_not_found"
	case errors.Is(err, models.ErrItemUnavailable):
		return http.StatusConflict, "item_unavailable"
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, models.ErrSubOrderNotFound):
		return http.StatusNotFound, "sub_order_not_found"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, models.ErrIdempotencyConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// RequestID returns the id chi assigned to r
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// WriteJSON writes v as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes err as an ErrorResponse. Internal errors are logged
// and their details are not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, log *logger.Logger, action string, err error) {
	status, code := StatusFor(err)
	requestID := RequestID(r)

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.WithContext(r.Context()).Error(action, "Request failed", requestID, err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		message = "Internal server error"
	} else {
		log.WithContext(r.Context()).Debug(action, "Request rejected", requestID, map[string]interface{}{
			"status": status,
			"error":  message,
		})
	}

	WriteMessage(w, r, status, code, message)
}

// WriteMessage writes an ErrorResponse with an explicit status and code
func WriteMessage(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: RequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
