package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"foodhub/internal/auth"
	"foodhub/internal/httpx"
	"foodhub/internal/logger"
	"foodhub/internal/models"
	"foodhub/internal/realtime"
)

// History reads back recorded notifications
type History interface {
	Recent(ctx context.Context, topic string, limit int) ([]models.Notification, error)
}

// Handler serves the event stream and the notification journal
type Handler struct {
	hub       *realtime.Hub
	history   History
	keepAlive time.Duration
	logger    *logger.Logger
}

// NewHandler creates a notification handler. history may be nil when the
// journal is disabled.
func NewHandler(hub *realtime.Hub, history History, keepAlive time.Duration, log *logger.Logger) *Handler {
	return &Handler{
		hub:       hub,
		history:   history,
		keepAlive: keepAlive,
		logger:    log,
	}
}

// RegisterRoutes mounts the event endpoints
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.Subscribe)
	r.Get("/events/recent", h.Recent)
}

// AuthorizeTopic checks that caller may listen on topic. Order topics are
// open to anyone holding the order id; vendor topics need the vendor's own
// staff or an admin.
func AuthorizeTopic(caller auth.Caller, topic string) error {
	switch {
	case strings.HasPrefix(topic, "order:") && len(topic) > len("order:"):
		return nil
	case strings.HasPrefix(topic, "vendor:") && len(topic) > len("vendor:"):
		vendorID := strings.TrimPrefix(topic, "vendor:")
		if caller.Role == auth.RoleAdmin || caller.ActsFor(vendorID) {
			return nil
		}
		return fmt.Errorf("%w: topic %s", models.ErrForbidden, topic)
	default:
		return models.ValidationError{Field: "topic", Message: "must be order:{id} or vendor:{id}"}
	}
}

// Subscribe handles GET /events?topic=...
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	caller := auth.FromContext(r.Context())

	if err := AuthorizeTopic(caller, topic); err != nil {
		httpx.WriteError(w, r, h.logger, "subscribe_rejected", err)
		return
	}

	requestID := httpx.RequestID(r)
	h.logger.WithContext(r.Context()).Info("listener_joined", "Listener subscribed to topic", requestID, map[string]interface{}{
		"topic": topic,
		"role":  string(caller.Role),
	})

	if err := h.hub.Stream(w, r, topic, h.keepAlive); err != nil {
		h.logger.Warn("listener_stream_failed", "Event stream ended with error", requestID, map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}

	h.logger.Info("listener_left", "Listener left topic", requestID, map[string]interface{}{
		"topic": topic,
	})
}

// Recent handles GET /events/recent?topic=&limit=
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	if auth.FromContext(r.Context()).Role != auth.RoleAdmin {
		httpx.WriteError(w, r, h.logger, "journal_rejected", fmt.Errorf("%w: journal is admin only", models.ErrForbidden))
		return
	}
	if h.history == nil {
		httpx.WriteMessage(w, r, http.StatusServiceUnavailable, "journal_disabled", "Notification journal is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.WriteError(w, r, h.logger, "journal_rejected", models.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}

	events, err := h.history.Recent(r.Context(), r.URL.Query().Get("topic"), limit)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "journal_read_failed", err)
		return
	}
	if events == nil {
		events = []models.Notification{}
	}

	_ = httpx.WriteJSON(w, http.StatusOK, events)
}
