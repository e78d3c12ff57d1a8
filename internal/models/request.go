package models

// CreateOrderRequest is the checkout payload. Clients send identifiers and
// quantities only; any price or name they add is never read.
type CreateOrderRequest struct {
	HubID        string               `json:"hubId"`
	CustomerName string               `json:"customerName"`
	TableInfo    string               `json:"tableInfo,omitempty"`
	VendorOrders []VendorOrderRequest `json:"vendorOrders"`
}

// VendorOrderRequest groups the requested items of one vendor
type VendorOrderRequest struct {
	VendorID string             `json:"vendorId"`
	Items    []OrderItemRequest `json:"items"`
}

// OrderItemRequest references a catalog item by id
type OrderItemRequest struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
}

// UpdateStatusRequest is the body of a sub-order status change
type UpdateStatusRequest struct {
	Status string `json:"status"`
}
