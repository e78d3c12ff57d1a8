package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names carried on notification topics
const (
	EventNewOrder     = "order:new"
	EventStatusChange = "order:status_change"
)

// VendorTopic addresses every listener of one vendor
func VendorTopic(vendorID string) string {
	return fmt.Sprintf("vendor:%s", vendorID)
}

// OrderTopic addresses the customers tracking one order
func OrderTopic(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

// NewOrderMessage is sent to a vendor when a checkout includes it
type NewOrderMessage struct {
	OrderID      string    `json:"orderId"`
	HubID        string    `json:"hubId"`
	VendorOrder  SubOrder  `json:"vendorOrder"`
	CustomerName string    `json:"customerName"`
	TableInfo    string    `json:"tableInfo,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StatusChangeMessage is sent when a sub-order changes status
type StatusChangeMessage struct {
	OrderID        string         `json:"orderId"`
	VendorID       string         `json:"vendorId"`
	Status         SubOrderStatus `json:"status"`
	PreviousStatus SubOrderStatus `json:"previousStatus"`
	OverallStatus  OverallStatus  `json:"overallStatus"`
	ChangedBy      string         `json:"changedBy"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Notification is the envelope delivered on a topic
type Notification struct {
	Topic     string          `json:"topic"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
	// Origin names the API instance that emitted the notification
	Origin string `json:"origin,omitempty"`
}

// NewNotification marshals payload into an envelope for topic
func NewNotification(topic, event string, payload interface{}) (Notification, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Notification{
		Topic:     topic,
		Event:     event,
		Payload:   body,
		EmittedAt: time.Now().UTC(),
	}, nil
}

// CreateNewOrderMessages builds one vendor message per sub-order of o
func CreateNewOrderMessages(o *Order) []NewOrderMessage {
	msgs := make([]NewOrderMessage, 0, len(o.VendorOrders))
	for _, so := range o.VendorOrders {
		msgs = append(msgs, NewOrderMessage{
			OrderID:      o.ID,
			HubID:        o.HubID,
			VendorOrder:  so,
			CustomerName: o.CustomerName,
			TableInfo:    o.TableInfo,
			CreatedAt:    o.CreatedAt,
		})
	}
	return msgs
}
