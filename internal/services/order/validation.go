package order

import (
	"fmt"
	"math"
	"strings"

	"foodhub/internal/models"
)

const (
	maxCustomerNameLength = 100
	minQuantity           = 1
	// sub_order_items.quantity is an INTEGER column
	maxQuantity           = math.MaxInt32
)

// ValidateCreateOrderRequest checks the shape of a checkout before any
// catalog lookup happens
func ValidateCreateOrderRequest(req *models.CreateOrderRequest) error {
	if req == nil {
		return models.ValidationError{Field: "body", Message: "request body is required"}
	}

	if strings.TrimSpace(req.HubID) == "" {
		return models.ValidationError{
			Field:   "hubId",
			Message: "hub id is required",
		}
	}

	if err := validateCustomerName(req.CustomerName); err != nil {
		return err
	}

	return validateVendorOrders(req.VendorOrders)
}

func validateCustomerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return models.ValidationError{
			Field:   "customerName",
			Message: "customer name is required",
		}
	}

	if len(name) > maxCustomerNameLength {
		return models.ValidationError{
			Field:   "customerName",
			Message: fmt.Sprintf("customer name must be at most %d characters", maxCustomerNameLength),
		}
	}
	return nil
}

func validateVendorOrders(groups []models.VendorOrderRequest) error {
	if len(groups) == 0 {
		return models.ValidationError{
			Field:   "vendorOrders",
			Message: "at least one vendor order is required",
		}
	}

	for i, group := range groups {
		if strings.TrimSpace(group.VendorID) == "" {
			return models.ValidationError{
				Field:   fmt.Sprintf("vendorOrders[%d].vendorId", i),
				Message: "vendor id is required",
			}
		}

		if len(group.Items) == 0 {
			return models.ValidationError{
				Field:   fmt.Sprintf("vendorOrders[%d].items", i),
				Message: "items cannot be empty",
			}
		}

		for j, item := range group.Items {
			if err := validateItem(item, i, j); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateItem(item models.OrderItemRequest, group, index int) error {
	if strings.TrimSpace(item.MenuItemID) == "" {
		return models.ValidationError{
			Field:   fmt.Sprintf("vendorOrders[%d].items[%d].menuItemId", group, index),
			Message: "menu item id is required",
		}
	}

	if item.Quantity < minQuantity {
		return models.ValidationError{
			Field:   fmt.Sprintf("vendorOrders[%d].items[%d].quantity", group, index),
			Message: fmt.Sprintf("quantity must be at least %d", minQuantity),
		}
	}
	if item.Quantity > maxQuantity {
		return models.ValidationError{
			Field:   fmt.Sprintf("vendorOrders[%d].items[%d].quantity", group, index),
			Message: "quantity is too large",
		}
	}
	return nil
}

// ParseStatus validates a requested sub-order status
func ParseStatus(raw string) (models.SubOrderStatus, error) {
	status, ok := models.ParseSubOrderStatus(strings.TrimSpace(raw))
	if !ok {
		return "", models.ValidationError{
			Field:   "status",
			Message: "status must be one of pending, preparing, ready, completed, cancelled",
		}
	}
	return status, nil
}
