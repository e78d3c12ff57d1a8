package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"foodhub/internal/auth"
	"foodhub/internal/cache"
	"foodhub/internal/logger"
	"foodhub/internal/models"
)

// Notifier delivers events to topic listeners. It never fails the caller.
type Notifier interface {
	Publish(ctx context.Context, topic, event string, payload interface{})
}

// Options holds the business switches of the service
type Options struct {
	// EnforceTransitions rejects status changes that move backwards
	EnforceTransitions bool
	IdempotencyTTL     time.Duration
	// PendingTTL bounds how long a checkout that never finishes holds its key
	PendingTTL         time.Duration
}

// Service creates orders and moves their sub-orders through the lifecycle
type Service struct {
	store    Store
	pricer   *Pricer
	notifier Notifier
	idem     cache.Idempotency
	opts     Options
	logger   *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates an order service. idem may be nil, which disables
// idempotent checkout.
func NewService(store Store, pricer *Pricer, notifier Notifier, idem cache.Idempotency, opts Options, log *logger.Logger) *Service {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = time.Minute
	}
	return &Service{
		store:    store,
		pricer:   pricer,
		notifier: notifier,
		idem:     idem,
		opts:     opts,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// CreateOrder prices req against the catalog, persists the order and tells
// every vendor about its part. With an idempotency key, a repeated call
// returns the order of the first one and replayed is true.
func (s *Service) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, idempotencyKey, requestID string) (o *models.Order, replayed bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "order.create")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create order failed")
		}
		span.End()
	}()
	log := s.logger.WithContext(ctx)

	if err := ValidateCreateOrderRequest(req); err != nil {
		return nil, false, err
	}

	orderID := s.newID()

	key, existing, err := s.reserve(ctx, idempotencyKey, orderID, requestID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}
	defer func() {
		if err != nil && key != "" {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
				log.Warn("idempotency_release_failed", "Failed to release idempotency key", requestID, map[string]interface{}{
					"error": relErr.Error(),
				})
			}
		}
	}()

	subOrders, err := s.pricer.Price(ctx, req)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	o = &models.Order{
		ID:           orderID,
		HubID:        req.HubID,
		CustomerName: req.CustomerName,
		TableInfo:    req.TableInfo,
		VendorOrders: subOrders,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	o.Recompute()
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int("order.vendors", len(o.VendorOrders)))

	if err := s.store.Create(ctx, o); err != nil {
		return nil, false, fmt.Errorf("failed to save order: %w", err)
	}
	if key != "" {
		if err := s.idem.Confirm(ctx, key, o.ID, s.opts.IdempotencyTTL); err != nil {
			log.Warn("idempotency_confirm_failed", "Failed to extend idempotency key", requestID, map[string]interface{}{
				"order_id": o.ID,
				"error":    err.Error(),
			})
		}
	}

	log.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_id":     o.ID,
		"hub_id":       o.HubID,
		"vendors":      len(o.VendorOrders),
		"total_amount": o.TotalAmount.StringFixed(2),
	})

	for _, msg := range models.CreateNewOrderMessages(o) {
		s.notifier.Publish(ctx, models.VendorTopic(msg.VendorOrder.VendorID), models.EventNewOrder, msg)
	}

	return o, false, nil
}

// reserve claims idempotencyKey for orderID until the checkout finishes or
// PendingTTL passes. When the key already resolved to an order, that order
// is returned. An unreachable cache degrades to a
// plain checkout.
func (s *Service) reserve(ctx context.Context, idempotencyKey, orderID, requestID string) (string, *models.Order, error) {
	if idempotencyKey == "" || s.idem == nil {
		return "", nil, nil
	}

	key := s.idem.GenerateKey("checkout", idempotencyKey)
	existingID, reserved, err := s.idem.Reserve(ctx, key, orderID, s.opts.PendingTTL)
	if err != nil {
		s.logger.WithContext(ctx).Warn("idempotency_unavailable", "Idempotency cache unavailable, continuing without it", requestID, map[string]interface{}{
			"error": err.Error(),
		})
		return "", nil, nil
	}
	if reserved {
		return key, nil, nil
	}

	existing, err := s.store.Get(ctx, existingID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return "", nil, fmt.Errorf("%w: %s", models.ErrIdempotencyConflict, idempotencyKey)
		}
		return "", nil, err
	}

	s.logger.WithContext(ctx).Info("order_replayed", "Returning order of earlier request with same idempotency key", requestID, map[string]interface{}{
		"order_id": existing.ID,
	})
	return "", existing, nil
}

// UpdateStatus moves vendorID's sub-order of orderID to status on behalf of
// caller, recomputes the overall status and notifies the order's listeners.
func (s *Service) UpdateStatus(ctx context.Context, orderID, vendorID, status string, caller auth.Caller, requestID string) (o *models.Order, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "order.update_status")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update status failed")
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("vendor.id", vendorID))

	next, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	if !caller.ActsFor(vendorID) {
		return nil, fmt.Errorf("%w: caller cannot update vendor %s", models.ErrForbidden, vendorID)
	}

	var (
		previous models.SubOrderStatus
		changed  bool
		at       time.Time
	)
	o, err = s.store.Mutate(ctx, orderID, func(o *models.Order) (bool, error) {
		so, ok := o.SubOrder(vendorID)
		if !ok {
			return false, fmt.Errorf("%w: vendor %s in order %s", models.ErrSubOrderNotFound, vendorID, orderID)
		}

		previous = so.Status
		if previous == next {
			return false, nil
		}
		if s.opts.EnforceTransitions && !models.CanTransition(previous, next) {
			return false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, previous, next)
		}

		at = s.now()
		so.Status = next
		so.UpdatedBy = caller.Name()
		so.UpdatedAt = &at
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.WithContext(ctx)
	if !changed {
		log.Debug("status_unchanged", "Sub-order already in requested status", requestID, map[string]interface{}{
			"order_id":  orderID,
			"vendor_id": vendorID,
			"status":    string(next),
		})
		return o, nil
	}

	log.Info("status_updated", "Sub-order status updated", requestID, map[string]interface{}{
		"order_id":        orderID,
		"vendor_id":       vendorID,
		"previous_status": string(previous),
		"new_status":      string(next),
		"overall_status":  string(o.Status),
		"version":         o.Version,
	})

	msg := models.StatusChangeMessage{
		OrderID:        orderID,
		VendorID:       vendorID,
		Status:         next,
		PreviousStatus: previous,
		OverallStatus:  o.Status,
		ChangedBy:      caller.Name(),
		Timestamp:      at,
	}
	s.notifier.Publish(ctx, models.OrderTopic(orderID), models.EventStatusChange, msg)
	s.notifier.Publish(ctx, models.VendorTopic(vendorID), models.EventStatusChange, msg)

	return o, nil
}
