// Package catalog reads menu items and vendors owned by the menu and hub
// services. The order engine only ever looks items up by id; it never
// caches catalog state between checkouts.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"foodhub/internal/database"
	"foodhub/internal/models"
)

// Gateway resolves a menu item by id. Implementations return an error
// wrapping models.ErrItemNotFound for unknown ids.
type Gateway interface {
	GetItem(ctx context.Context, itemID string) (models.MenuItem, error)
}

// Directory resolves the hub a vendor belongs to. Implementations return an
// error wrapping models.ErrVendorNotFound for unknown ids.
type Directory interface {
	GetVendor(ctx context.Context, vendorID string) (models.Vendor, error)
}

// querier is the subset of *database.DB the catalog needs
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Postgres implements Gateway and Directory over the shared catalog tables
type Postgres struct {
	db querier
}

// NewPostgres creates a catalog reader on db
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

// GetItem returns the current name, price and availability of itemID
func (p *Postgres) GetItem(ctx context.Context, itemID string) (models.MenuItem, error) {
	var (
		item  models.MenuItem
		price string
	)

	err := p.db.QueryRow(ctx, database.GetMenuItemSQL, itemID).Scan(
		&item.ID,
		&item.VendorID,
		&item.Name,
		&price,
		&item.Available,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MenuItem{}, fmt.Errorf("%w: %s", models.ErrItemNotFound, itemID)
		}
		return models.MenuItem{}, fmt.Errorf("query menu item %s: %w", itemID, err)
	}

	item.Price, err = decimal.NewFromString(price)
	if err != nil {
		return models.MenuItem{}, fmt.Errorf("parse price of menu item %s: %w", itemID, err)
	}

	return item, nil
}

// GetVendor returns the directory entry of vendorID
func (p *Postgres) GetVendor(ctx context.Context, vendorID string) (models.Vendor, error) {
	var v models.Vendor

	err := p.db.QueryRow(ctx, database.GetVendorSQL, vendorID).Scan(&v.ID, &v.HubID, &v.Name, &v.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vendor{}, fmt.Errorf("%w: %s", models.ErrVendorNotFound, vendorID)
		}
		return models.Vendor{}, fmt.Errorf("query vendor %s: %w", vendorID, err)
	}

	return v, nil
}
