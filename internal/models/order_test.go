package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allSubStatuses = []SubOrderStatus{StatusPending, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled}

func subOrders(statuses ...SubOrderStatus) []SubOrder {
	out := make([]SubOrder, len(statuses))
	for i, st := range statuses {
		out[i] = SubOrder{VendorID: string(rune('a' + i)), Status: st}
	}
	return out
}

func TestDeriveOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []SubOrderStatus
		want     OverallStatus
	}{
		{"all pending", []SubOrderStatus{StatusPending, StatusPending}, OverallPending},
		{"one preparing", []SubOrderStatus{StatusPreparing, StatusPending}, OverallInProgress},
		{"one ready", []SubOrderStatus{StatusPending, StatusReady}, OverallInProgress},
		{"preparing and completed", []SubOrderStatus{StatusPreparing, StatusCompleted}, OverallInProgress},
		{"all completed", []SubOrderStatus{StatusCompleted, StatusCompleted}, OverallCompleted},
		{"single completed", []SubOrderStatus{StatusCompleted}, OverallCompleted},
		{"completed and cancelled", []SubOrderStatus{StatusCompleted, StatusCancelled}, OverallPending},
		{"all cancelled", []SubOrderStatus{StatusCancelled, StatusCancelled}, OverallPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveOverallStatus(subOrders(tt.statuses...)))
		})
	}
}

// Every combination of three sub-order statuses must follow the aggregation rule.
func TestDeriveOverallStatus_AllCombinations(t *testing.T) {
	for _, a := range allSubStatuses {
		for _, b := range allSubStatuses {
			for _, c := range allSubStatuses {
				got := DeriveOverallStatus(subOrders(a, b, c))

				allCompleted := a == StatusCompleted && b == StatusCompleted && c == StatusCompleted
				active := false
				for _, s := range []SubOrderStatus{a, b, c} {
					if s == StatusPreparing || s == StatusReady {
						active = true
					}
				}

				switch {
				case allCompleted:
					assert.Equal(t, OverallCompleted, got, "%s/%s/%s", a, b, c)
				case active:
					assert.Equal(t, OverallInProgress, got, "%s/%s/%s", a, b, c)
				default:
					assert.Equal(t, OverallPending, got, "%s/%s/%s", a, b, c)
				}
			}
		}
	}
}

func TestOrder_Recompute(t *testing.T) {
	o := &Order{
		VendorOrders: []SubOrder{
			{VendorID: "a", Status: StatusPending, Items: []LineItem{
				{MenuItemID: "i1", Price: decimal.RequireFromString("5.00"), Quantity: 2},
			}, Subtotal: decimal.RequireFromString("999")},
			{VendorID: "b", Status: StatusPreparing, Items: []LineItem{
				{MenuItemID: "i2", Price: decimal.RequireFromString("12.99"), Quantity: 1},
				{MenuItemID: "i3", Price: decimal.RequireFromString("0.10"), Quantity: 3},
			}},
		},
		TotalAmount: decimal.RequireFromString("1"),
	}

	o.Recompute()

	assert.True(t, o.VendorOrders[0].Subtotal.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, o.VendorOrders[1].Subtotal.Equal(decimal.RequireFromString("13.29")))
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("23.29")))
	assert.Equal(t, OverallInProgress, o.Status)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SubOrderStatus
		want     bool
	}{
		{StatusPending, StatusPreparing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusReady, StatusPreparing, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPreparing, false},
		{StatusCompleted, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseSubOrderStatus(t *testing.T) {
	for _, st := range allSubStatuses {
		got, ok := ParseSubOrderStatus(string(st))
		assert.True(t, ok)
		assert.Equal(t, st, got)
	}

	_, ok := ParseSubOrderStatus("in-progress")
	assert.False(t, ok)
	_, ok = ParseSubOrderStatus("")
	assert.False(t, ok)
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := &Order{ID: "o1", VendorOrders: []SubOrder{
		{VendorID: "a", Status: StatusPending, Items: []LineItem{{MenuItemID: "i1", Quantity: 1}}},
	}}

	c := o.Clone()
	c.VendorOrders[0].Status = StatusReady
	c.VendorOrders[0].Items[0].Quantity = 5

	assert.Equal(t, StatusPending, o.VendorOrders[0].Status)
	assert.Equal(t, 1, o.VendorOrders[0].Items[0].Quantity)
}

func TestOrder_ProjectForVendor(t *testing.T) {
	o := &Order{ID: "o1", Status: OverallInProgress, VendorOrders: []SubOrder{
		{VendorID: "a", Subtotal: decimal.RequireFromString("10.00")},
		{VendorID: "b", Subtotal: decimal.RequireFromString("12.99")},
	}, TotalAmount: decimal.RequireFromString("22.99")}

	p := o.ProjectForVendor("b")

	require.Len(t, p.VendorOrders, 1)
	assert.Equal(t, "b", p.VendorOrders[0].VendorID)
	assert.True(t, p.TotalAmount.Equal(decimal.RequireFromString("12.99")))
	assert.Equal(t, OverallInProgress, p.Status)
	assert.Len(t, o.VendorOrders, 2, "projection must not mutate the source")
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := error(ValidationError{Field: "hubId", Message: "hub id is required"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "hubId: hub id is required", err.Error())
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "vendor:v1", VendorTopic("v1"))
	assert.Equal(t, "order:o1", OrderTopic("o1"))
}
