package order

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"foodhub/internal/catalog"
	"foodhub/internal/models"
)

const tracerName = "foodhub/order"

// Pricer resolves requested items against the catalog and splits a
// checkout into one sub-order per vendor. Prices and names always come
// from the catalog at lookup time.
type Pricer struct {
	catalog     catalog.Gateway
	directory   catalog.Directory
	strictHub   bool
	concurrency int
}

// NewPricer creates a pricer. directory may be nil, which skips the hub check.
func NewPricer(gw catalog.Gateway, dir catalog.Directory, strictHub bool, concurrency int) *Pricer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pricer{
		catalog:     gw,
		directory:   dir,
		strictHub:   strictHub,
		concurrency: concurrency,
	}
}

// vendorGroup collects the items of one vendor, merged across repeated
// groups in the request
type vendorGroup struct {
	vendorID string
	index    int
	lines    []lookup
}

// lookup is one requested line and where it appeared in the request
type lookup struct {
	vendorID string
	group    int
	index    int
	itemID   string
	quantity int
	item     models.MenuItem
	err      error
}

// Price builds the pending sub-orders of req. It fails as a whole when any
// item cannot be resolved.
func (p *Pricer) Price(ctx context.Context, req *models.CreateOrderRequest) ([]models.SubOrder, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "order.price")
	defer span.End()

	groups := mergeVendorGroups(req.VendorOrders)

	var lines []*lookup
	for _, g := range groups {
		for i := range g.lines {
			lines = append(lines, &g.lines[i])
		}
	}
	span.SetAttributes(
		attribute.Int("order.vendors", len(groups)),
		attribute.Int("order.lines", len(lines)),
	)

	if err := p.resolve(ctx, lines); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "item lookup failed")
		return nil, err
	}

	for _, g := range groups {
		if err := p.checkVendor(ctx, req.HubID, g); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "vendor check failed")
			return nil, err
		}
	}

	subOrders := make([]models.SubOrder, 0, len(groups))
	for _, g := range groups {
		so := models.SubOrder{
			VendorID: g.vendorID,
			Items:    make([]models.LineItem, 0, len(g.lines)),
			Status:   models.StatusPending,
		}
		for _, l := range g.lines {
			so.Items = append(so.Items, models.LineItem{
				MenuItemID: l.itemID,
				Name:       l.item.Name,
				Price:      l.item.Price,
				Quantity:   l.quantity,
			})
		}
		so.Subtotal = so.ComputeSubtotal()
		subOrders = append(subOrders, so)
	}

	return subOrders, nil
}

// resolve looks every line up concurrently, bounded by the pricer's
// concurrency. Every lookup runs to completion so the reported failure does
// not depend on scheduling: an unknown item wins over a lookup error, and
// among equals the first line in the request wins.
func (p *Pricer) resolve(ctx context.Context, lines []*lookup) error {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, l := range lines {
		g.Go(func() error {
			l.item, l.err = p.catalog.GetItem(ctx, l.itemID)
			return nil
		})
	}
	_ = g.Wait()

	var lookupErr error
	for _, l := range lines {
		if l.err == nil {
			continue
		}
		if errors.Is(l.err, models.ErrItemNotFound) {
			return fmt.Errorf("%w: %s", models.ErrItemNotFound, l.itemID)
		}
		if lookupErr == nil {
			lookupErr = fmt.Errorf("failed to look up menu item %s: %w", l.itemID, l.err)
		}
	}
	if lookupErr != nil {
		return lookupErr
	}

	// ownership before availability so a misplaced item reads as a bad request
	for _, l := range lines {
		if l.item.VendorID != "" && l.item.VendorID != l.vendorID {
			return models.ValidationError{
				Field:   fmt.Sprintf("vendorOrders[%d].items[%d].menuItemId", l.group, l.index),
				Message: fmt.Sprintf("item %s is not sold by this vendor", l.itemID),
			}
		}
	}
	for _, l := range lines {
		if !l.item.Available {
			return fmt.Errorf("%w: %s", models.ErrItemUnavailable, l.itemID)
		}
	}
	return nil
}

// checkVendor verifies that the vendor trades in the requested hub
func (p *Pricer) checkVendor(ctx context.Context, hubID string, g vendorGroup) error {
	if !p.strictHub || p.directory == nil {
		return nil
	}

	field := fmt.Sprintf("vendorOrders[%d].vendorId", g.index)

	v, err := p.directory.GetVendor(ctx, g.vendorID)
	if err != nil {
		if errors.Is(err, models.ErrVendorNotFound) {
			return models.ValidationError{Field: field, Message: fmt.Sprintf("unknown vendor %s", g.vendorID)}
		}
		return fmt.Errorf("failed to look up vendor %s: %w", g.vendorID, err)
	}

	if v.HubID != hubID {
		return models.ValidationError{Field: field, Message: fmt.Sprintf("vendor %s does not trade in hub %s", g.vendorID, hubID)}
	}
	if !v.IsActive {
		return models.ValidationError{Field: field, Message: fmt.Sprintf("vendor %s is not accepting orders", g.vendorID)}
	}
	return nil
}

// mergeVendorGroups folds repeated vendor groups into the first one, keeping
// first-appearance order
func mergeVendorGroups(reqs []models.VendorOrderRequest) []vendorGroup {
	var groups []vendorGroup
	pos := make(map[string]int, len(reqs))

	for gi, r := range reqs {
		idx, ok := pos[r.VendorID]
		if !ok {
			idx = len(groups)
			pos[r.VendorID] = idx
			groups = append(groups, vendorGroup{vendorID: r.VendorID, index: gi})
		}
		for ii, item := range r.Items {
			groups[idx].lines = append(groups[idx].lines, lookup{
				vendorID: r.VendorID,
				group:    gi,
				index:    ii,
				itemID:   item.MenuItemID,
				quantity: item.Quantity,
			})
		}
	}
	return groups
}
