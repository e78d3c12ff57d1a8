package tracking

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"foodhub/internal/auth"
	"foodhub/internal/httpx"
	"foodhub/internal/logger"
)

// Handler handles HTTP requests for the tracking service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new tracking handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes mounts the read endpoints
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{id}", h.GetOrder)
	r.Get("/orders/{id}/history", h.GetOrderHistory)
	r.Get("/health", h.HealthCheck)
}

// ListOrders handles GET /orders requests
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := httpx.RequestID(r)

	filter, err := ParseListFilter(r.URL.Query().Get("status"), r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), auth.FromContext(r.Context()), filter, requestID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "db_query_failed", err)
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, orders); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// GetOrder handles GET /orders/{id} requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := httpx.RequestID(r)
	orderID := chi.URLParam(r, "id")

	h.logger.WithContext(r.Context()).Debug("request_received", "Get order request", requestID, map[string]interface{}{
		"order_id": orderID,
	})

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "db_query_failed", err)
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, order); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// GetOrderHistory handles GET /orders/{id}/history requests
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	requestID := httpx.RequestID(r)
	orderID := chi.URLParam(r, "id")

	history, err := h.service.GetOrderHistory(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "db_query_failed", err)
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, history); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	healthy, checks := h.service.HealthCheck(r.Context())

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"checks":    checks,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}

	_ = httpx.WriteJSON(w, status, response)
}
