package tracking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"foodhub/internal/auth"
	"foodhub/internal/logger"
	"foodhub/internal/models"
)

// Reader is the read side of the order store
type Reader interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Order, error)
	History(ctx context.Context, orderID string) ([]models.StatusHistory, error)
	Ping(ctx context.Context) error
}

// CheckFunc reports the health of one dependency
type CheckFunc func(ctx context.Context) error

// Service provides tracking functionality
type Service struct {
	store  Reader
	redact bool
	checks map[string]CheckFunc
	logger *logger.Logger
}

// NewService creates a new tracking service. With redact set, vendor
// listings only show the caller's own sub-orders.
func NewService(store Reader, redact bool, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		redact: redact,
		checks: map[string]CheckFunc{"database": store.Ping},
		logger: log,
	}
}

// AddCheck registers a named dependency check reported by HealthCheck
func (s *Service) AddCheck(name string, check CheckFunc) {
	s.checks[name] = check
}

// ListOrders returns the orders visible to caller, newest first
func (s *Service) ListOrders(ctx context.Context, caller auth.Caller, filter models.ListFilter, requestID string) ([]*models.Order, error) {
	switch {
	case caller.Role == auth.RoleAdmin:
		filter.VendorID = ""
	case caller.VendorScoped():
		filter.VendorID = caller.VendorID
	default:
		return nil, fmt.Errorf("%w: listing orders requires a vendor or admin identity", models.ErrForbidden)
	}

	orders, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	if s.redact && filter.VendorID != "" {
		for i, o := range orders {
			orders[i] = o.ProjectForVendor(filter.VendorID)
		}
	}

	s.logger.WithContext(ctx).Debug("orders_listed", "Orders listed", requestID, map[string]interface{}{
		"role":      string(caller.Role),
		"vendor_id": filter.VendorID,
		"count":     len(orders),
	})
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

// GetOrder returns one order. Anyone holding the id may track it.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.Get(ctx, orderID)
}

// GetOrderHistory returns the status log of an order, oldest first
func (s *Service) GetOrderHistory(ctx context.Context, orderID string) ([]models.StatusHistory, error) {
	history, err := s.store.History(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.StatusHistory{}
	}
	return history, nil
}

// HealthCheck runs every registered check. The map holds "ok" or the
// failure of each dependency.
func (s *Service) HealthCheck(ctx context.Context) (bool, map[string]string) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.WithContext(ctx).Error("health_check_failed", "Dependency check failed", "", err, map[string]interface{}{
				"dependency": name,
			})
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return healthy, results
}

// ParseListFilter reads the status and limit query parameters
func ParseListFilter(status, limit string) (models.ListFilter, error) {
	var filter models.ListFilter

	if status = strings.TrimSpace(status); status != "" {
		switch st := models.OverallStatus(status); st {
		case models.OverallPending, models.OverallInProgress, models.OverallCompleted:
			filter.Status = st
		default:
			return filter, models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
		}
	}

	if limit = strings.TrimSpace(limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, models.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		filter.Limit = n
	}
	return filter, nil
}
