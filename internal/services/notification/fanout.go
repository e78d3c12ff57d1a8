package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"foodhub/internal/logger"
	"foodhub/internal/models"
	"foodhub/internal/realtime"
)

// Broker relays notifications between API instances
type Broker interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// Recorder keeps an audit trail of emitted notifications
type Recorder interface {
	Record(ctx context.Context, n models.Notification) error
}

// Fanout publishes notifications to topic listeners. Delivery is
// best-effort: failures are logged and never reach the caller.
//
// Events always reach the local hub directly. With a broker they are also
// published to the exchange, stamped with this instance's origin, so the
// other instances can pick them up from their relay queues; the relay
// skips events that carry its own origin.
type Fanout struct {
	hub     *realtime.Hub
	broker  Broker
	journal Recorder
	origin  string
	logger  *logger.Logger
}

// NewFanout creates a fan-out over hub. broker and journal may be nil.
func NewFanout(hub *realtime.Hub, broker Broker, journal Recorder, log *logger.Logger) *Fanout {
	return &Fanout{
		hub:     hub,
		broker:  broker,
		journal: journal,
		origin:  uuid.NewString(),
		logger:  log,
	}
}

// Origin identifies this instance on relayed notifications
func (f *Fanout) Origin() string {
	return f.origin
}

// Publish emits event with payload on topic
func (f *Fanout) Publish(ctx context.Context, topic, event string, payload interface{}) {
	log := f.logger.WithContext(ctx)

	n, err := models.NewNotification(topic, event, payload)
	if err != nil {
		log.Error("notification_build_failed", "Failed to build notification", "", err, map[string]interface{}{
			"topic": topic,
			"event": event,
		})
		return
	}
	n.Origin = f.origin

	if f.journal != nil {
		if err := f.journal.Record(ctx, n); err != nil {
			log.Warn("notification_journal_failed", "Failed to record notification", "", map[string]interface{}{
				"topic": topic,
				"event": event,
				"error": err.Error(),
			})
		}
	}

	f.deliver(log, n)

	if f.broker != nil {
		if err := f.broker.PublishNotification(ctx, n); err != nil {
			log.Warn("notification_relay_failed", "Broker rejected notification, other instances will miss it", "", map[string]interface{}{
				"topic": topic,
				"event": event,
				"error": err.Error(),
			})
		}
	}
}

// HandleRelay delivers a notification received from the broker to local listeners
func (f *Fanout) HandleRelay(ctx context.Context, body []byte) error {
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("failed to parse relayed notification: %w", err)
	}
	if n.Topic == "" {
		return fmt.Errorf("relayed notification has no topic")
	}
	// already delivered by Publish
	if n.Origin == f.origin {
		return nil
	}

	f.deliver(f.logger.WithContext(ctx), n)
	return nil
}

func (f *Fanout) deliver(log *logger.Logger, n models.Notification) {
	delivered := f.hub.Publish(n)
	log.Debug("notification_delivered", "Notification delivered to local listeners", "", map[string]interface{}{
		"topic":     n.Topic,
		"event":     n.Event,
		"listeners": delivered,
	})
}
