package order

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"foodhub/internal/auth"
	"foodhub/internal/httpx"
	"foodhub/internal/logger"
	"foodhub/internal/models"
)

// HeaderIdempotencyKey makes a checkout safe to retry
const HeaderIdempotencyKey = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	timeout time.Duration
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, timeout time.Duration, log *logger.Logger) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		service: service,
		timeout: timeout,
		logger:  log,
	}
}

// RegisterRoutes mounts the order write endpoints
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Put("/orders/{id}/vendor/{vendorId}/status", h.UpdateStatus)
}

// CreateOrder handles POST /orders requests
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := httpx.RequestID(r)

	if !isJSON(r) {
		httpx.WriteError(w, r, h.logger, "validation_failed",
			models.ValidationError{Field: "Content-Type", Message: "must be application/json"})
		return
	}

	h.logger.WithContext(r.Context()).Debug("order_received", "Received order creation request", requestID, map[string]interface{}{
		"content_length": r.ContentLength,
		"remote_addr":    r.RemoteAddr,
	})

	// unknown fields such as client-side prices are ignored
	var req models.CreateOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed",
			models.ValidationError{Field: "body", Message: "invalid JSON format"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, replayed, err := h.service.CreateOrder(ctx, &req, r.Header.Get(HeaderIdempotencyKey), requestID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "order_creation_failed", err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	if err := httpx.WriteJSON(w, status, order); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// UpdateStatus handles PUT /orders/{id}/vendor/{vendorId}/status requests
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := httpx.RequestID(r)
	orderID := chi.URLParam(r, "id")
	vendorID := chi.URLParam(r, "vendorId")

	var req models.UpdateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed",
			models.ValidationError{Field: "body", Message: "invalid JSON format"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.service.UpdateStatus(ctx, orderID, vendorID, req.Status, auth.FromContext(r.Context()), requestID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "status_update_failed", err)
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, order); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
