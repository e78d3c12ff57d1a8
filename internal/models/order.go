package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubOrderStatus is the lifecycle state of one vendor's part of an order
type SubOrderStatus string

const (
	StatusPending   SubOrderStatus = "pending"
	StatusPreparing SubOrderStatus = "preparing"
	StatusReady     SubOrderStatus = "ready"
	StatusCompleted SubOrderStatus = "completed"
	StatusCancelled SubOrderStatus = "cancelled"
)

// OverallStatus is the status of the whole checkout, derived from its sub-orders
type OverallStatus string

const (
	OverallPending    OverallStatus = "pending"
	OverallInProgress OverallStatus = "in-progress"
	OverallCompleted  OverallStatus = "completed"
)

// ParseSubOrderStatus validates s against the sub-order lifecycle states
func ParseSubOrderStatus(s string) (SubOrderStatus, bool) {
	switch st := SubOrderStatus(s); st {
	case StatusPending, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further forward transition exists
func (s SubOrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// forwardTransitions lists where each state may move when transitions are enforced
var forwardTransitions = map[SubOrderStatus][]SubOrderStatus{
	StatusPending:   {StatusPreparing, StatusReady, StatusCompleted, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCompleted, StatusCancelled},
	StatusReady:     {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to moves forward through the
// lifecycle. Staying in the same state is always allowed.
func CanTransition(from, to SubOrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MenuItem is the catalog's view of an item at lookup time
type MenuItem struct {
	ID        string          `json:"id"`
	VendorID  string          `json:"vendorId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// Vendor is the directory's view of a vendor
type Vendor struct {
	ID       string `json:"id"`
	HubID    string `json:"hubId"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// LineItem is a price and name snapshot taken from the catalog at checkout
type LineItem struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
}

// Amount returns price times quantity
func (li LineItem) Amount() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// SubOrder is the portion of an order that belongs to one vendor
type SubOrder struct {
	VendorID  string          `json:"vendorId"`
	Items     []LineItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Status    SubOrderStatus  `json:"status"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// ComputeSubtotal sums the line amounts of the sub-order
func (so SubOrder) ComputeSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range so.Items {
		total = total.Add(item.Amount())
	}
	return total
}

// Order is a multi-vendor checkout composed of sub-orders
type Order struct {
	ID           string          `json:"id"`
	HubID        string          `json:"hubId"`
	CustomerName string          `json:"customerName"`
	TableInfo    string          `json:"tableInfo,omitempty"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Status       OverallStatus   `json:"status"`
	VendorOrders []SubOrder      `json:"vendorOrders"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Recompute refreshes every subtotal, the grand total and the overall
// status from the sub-order contents.
func (o *Order) Recompute() {
	total := decimal.Zero
	for i := range o.VendorOrders {
		o.VendorOrders[i].Subtotal = o.VendorOrders[i].ComputeSubtotal()
		total = total.Add(o.VendorOrders[i].Subtotal)
	}
	o.TotalAmount = total
	o.Status = DeriveOverallStatus(o.VendorOrders)
}

// SubOrder returns the sub-order owned by vendorID
func (o *Order) SubOrder(vendorID string) (*SubOrder, bool) {
	for i := range o.VendorOrders {
		if o.VendorOrders[i].VendorID == vendorID {
			return &o.VendorOrders[i], true
		}
	}
	return nil, false
}

// HasVendor reports whether vendorID owns a sub-order of o
func (o *Order) HasVendor(vendorID string) bool {
	_, ok := o.SubOrder(vendorID)
	return ok
}

// Clone returns a deep copy of o
func (o *Order) Clone() *Order {
	c := *o
	c.VendorOrders = make([]SubOrder, len(o.VendorOrders))
	for i, so := range o.VendorOrders {
		so.Items = append([]LineItem(nil), so.Items...)
		if so.UpdatedAt != nil {
			t := *so.UpdatedAt
			so.UpdatedAt = &t
		}
		c.VendorOrders[i] = so
	}
	return &c
}

// ProjectForVendor returns a copy of o holding only vendorID's sub-order,
// with the total recomputed over what remains visible.
func (o *Order) ProjectForVendor(vendorID string) *Order {
	c := o.Clone()
	visible := c.VendorOrders[:0]
	for _, so := range c.VendorOrders {
		if so.VendorID == vendorID {
			visible = append(visible, so)
		}
	}
	c.VendorOrders = visible

	total := decimal.Zero
	for _, so := range c.VendorOrders {
		total = total.Add(so.Subtotal)
	}
	c.TotalAmount = total
	return c
}

// DeriveOverallStatus aggregates sub-order statuses into the order status.
// Cancelled sub-orders get no special treatment.
func DeriveOverallStatus(subOrders []SubOrder) OverallStatus {
	allCompleted := len(subOrders) > 0
	active := false
	for _, so := range subOrders {
		if so.Status != StatusCompleted {
			allCompleted = false
		}
		if so.Status == StatusPreparing || so.Status == StatusReady {
			active = true
		}
	}

	switch {
	case allCompleted:
		return OverallCompleted
	case active:
		return OverallInProgress
	default:
		return OverallPending
	}
}

// StatusHistory is one entry of a sub-order's status log
type StatusHistory struct {
	VendorID  string         `json:"vendorId"`
	Status    SubOrderStatus `json:"status"`
	ChangedBy string         `json:"changedBy"`
	ChangedAt time.Time      `json:"changedAt"`
	Notes     *string        `json:"notes,omitempty"`
}

// ListFilter narrows an order listing
type ListFilter struct {
	VendorID string
	Status   OverallStatus
	Limit    int
}
