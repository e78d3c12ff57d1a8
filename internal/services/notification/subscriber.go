package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"foodhub/internal/logger"
	"foodhub/internal/messaging"
	"foodhub/internal/models"
)

// Subscriber prints human-readable notifications read from the durable
// notifications queue
type Subscriber struct {
	consumer *messaging.Consumer
	logger   *logger.Logger
	out      io.Writer

	// Graceful shutdown
	shutdown chan os.Signal
	done     chan bool
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(consumer *messaging.Consumer, log *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		out:      os.Stdout,
		shutdown: make(chan os.Signal, 1),
		done:     make(chan bool, 1),
	}
}

// Start consumes notifications until a shutdown signal arrives or ctx ends
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	signal.Notify(s.shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.shutdown)

	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	go func() {
		if err := s.consumer.StartConsuming(ctx, s.handleNotification); err != nil && ctx.Err() == nil {
			s.logger.Error("consumer_failed", "Notification consumer failed", requestID, err, nil)
		}
		s.done <- true
	}()

	select {
	case <-s.shutdown:
		s.logger.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		return s.gracefulShutdown(requestID)
	case <-ctx.Done():
		return s.gracefulShutdown(requestID)
	case <-s.done:
		return nil
	}
}

// handleNotification decodes one notification and prints it
func (s *Subscriber) handleNotification(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var n models.Notification
	if err := messaging.ParseMessage(body, &n); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse notification message", requestID, err, nil)
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	line, err := FormatNotification(n)
	if err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse notification payload", requestID, err, map[string]interface{}{
			"topic": n.Topic,
			"event": n.Event,
		})
		return err
	}

	fmt.Fprintln(s.out, line)

	s.logger.Info("notification_displayed", "Notification displayed to user", requestID, map[string]interface{}{
		"topic": n.Topic,
		"event": n.Event,
	})
	return nil
}

// FormatNotification renders n as one console line
func FormatNotification(n models.Notification) (string, error) {
	timestamp := n.EmittedAt.Format("2006-01-02 15:04:05")

	switch n.Event {
	case models.EventNewOrder:
		var msg models.NewOrderMessage
		if err := json.Unmarshal(n.Payload, &msg); err != nil {
			return "", fmt.Errorf("failed to parse %s payload: %w", n.Event, err)
		}
		return fmt.Sprintf(
			"🧾 [%s] New order %s for %s from %s (%d items, %s).",
			timestamp,
			msg.OrderID,
			msg.VendorOrder.VendorID,
			msg.CustomerName,
			len(msg.VendorOrder.Items),
			msg.VendorOrder.Subtotal.StringFixed(2),
		), nil

	case models.EventStatusChange:
		var msg models.StatusChangeMessage
		if err := json.Unmarshal(n.Payload, &msg); err != nil {
			return "", fmt.Errorf("failed to parse %s payload: %w", n.Event, err)
		}
		return formatStatusChange(timestamp, n.Topic, msg), nil

	default:
		return fmt.Sprintf("📋 [%s] %s on %s.", timestamp, n.Event, n.Topic), nil
	}
}

func formatStatusChange(timestamp, topic string, msg models.StatusChangeMessage) string {
	switch msg.Status {
	case models.StatusPreparing:
		return fmt.Sprintf(
			"🍳 [%s] %s: %s is now preparing order %s.",
			timestamp, topic, msg.VendorID, msg.OrderID,
		)
	case models.StatusReady:
		return fmt.Sprintf(
			"✅ [%s] %s: order %s is ready for pickup at %s!",
			timestamp, topic, msg.OrderID, msg.VendorID,
		)
	case models.StatusCompleted:
		if msg.OverallStatus == models.OverallCompleted {
			return fmt.Sprintf(
				"🎉 [%s] %s: order %s has been completed. Enjoy your meal!",
				timestamp, topic, msg.OrderID,
			)
		}
		return fmt.Sprintf(
			"🎉 [%s] %s: %s completed its part of order %s.",
			timestamp, topic, msg.VendorID, msg.OrderID,
		)
	case models.StatusCancelled:
		return fmt.Sprintf(
			"❌ [%s] %s: %s cancelled its part of order %s.",
			timestamp, topic, msg.VendorID, msg.OrderID,
		)
	default:
		return fmt.Sprintf(
			"📋 [%s] %s: order %s at %s changed from '%s' to '%s' by %s.",
			timestamp, topic, msg.OrderID, msg.VendorID, msg.PreviousStatus, msg.Status, msg.ChangedBy,
		)
	}
}

// gracefulShutdown handles graceful shutdown of the subscriber
func (s *Subscriber) gracefulShutdown(requestID string) error {
	s.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Warn("graceful_shutdown", "Consumer close failed", requestID, map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	s.logger.Info("graceful_shutdown", "Graceful shutdown completed", requestID, nil)
	return nil
}
