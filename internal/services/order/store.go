package order

import (
	"context"
	"time"

	"foodhub/internal/models"
)

// MutateFunc changes an order in place. It reports whether anything
// changed; returning false or an error leaves the stored order untouched.
type MutateFunc func(o *models.Order) (bool, error)

// Store persists orders. Every implementation must run Mutate as one atomic
// read-modify-write per order: concurrent mutations of the same order are
// serialized and none of them is lost.
type Store interface {
	// Create persists a new order with its sub-orders and their initial
	// status log entries
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, orderID string) (*models.Order, error)
	// List returns orders newest first
	List(ctx context.Context, filter models.ListFilter) ([]*models.Order, error)
	// Mutate loads orderID, applies fn, recomputes the aggregate, bumps the
	// version and records a status log entry for every sub-order whose
	// status changed. It returns the order as stored afterwards.
	Mutate(ctx context.Context, orderID string, fn MutateFunc) (*models.Order, error)
	History(ctx context.Context, orderID string) ([]models.StatusHistory, error)
	Ping(ctx context.Context) error
}

const (
	systemActor  = "order-service"
	placedNote   = "order placed"
	defaultLimit = 50
	maximumLimit = 200
)

// effectiveLimit clamps a requested listing size
func effectiveLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maximumLimit {
		return maximumLimit
	}
	return limit
}

// changedSubOrders returns the sub-orders of after whose status differs from before
func changedSubOrders(before map[string]models.SubOrderStatus, after *models.Order) []models.SubOrder {
	var changed []models.SubOrder
	for _, so := range after.VendorOrders {
		if prev, ok := before[so.VendorID]; !ok || prev != so.Status {
			changed = append(changed, so)
		}
	}
	return changed
}

func statusSnapshot(o *models.Order) map[string]models.SubOrderStatus {
	snap := make(map[string]models.SubOrderStatus, len(o.VendorOrders))
	for _, so := range o.VendorOrders {
		snap[so.VendorID] = so.Status
	}
	return snap
}

func historyEntry(so models.SubOrder, fallback string, at time.Time) models.StatusHistory {
	h := models.StatusHistory{
		VendorID:  so.VendorID,
		Status:    so.Status,
		ChangedBy: so.UpdatedBy,
		ChangedAt: at,
	}
	if h.ChangedBy == "" {
		h.ChangedBy = fallback
	}
	if so.UpdatedAt != nil {
		h.ChangedAt = *so.UpdatedAt
	}
	return h
}
