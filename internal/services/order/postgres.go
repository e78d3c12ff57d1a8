package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"foodhub/internal/database"
	"foodhub/internal/logger"
	"foodhub/internal/models"
)

// queryer is satisfied by both the pool and a transaction
type queryer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// pool is the subset of *database.DB the store needs
type pool interface {
	queryer
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore persists orders in PostgreSQL. Mutations lock the order row
// with SELECT ... FOR UPDATE for the length of one transaction.
type PostgresStore struct {
	db     pool
	logger *logger.Logger
}

// NewPostgresStore creates a store on db
func NewPostgresStore(db *database.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: log}
}

func (s *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, database.InsertOrderSQL,
		o.ID,
		o.HubID,
		o.CustomerName,
		o.TableInfo,
		o.TotalAmount.String(),
		string(o.Status),
		o.Version,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}

	note := placedNote
	for pos, so := range o.VendorOrders {
		_, err = tx.Exec(ctx, database.InsertSubOrderSQL,
			o.ID, so.VendorID, pos, so.Subtotal.String(), string(so.Status))
		if err != nil {
			return fmt.Errorf("failed to insert sub-order %s/%s: %w", o.ID, so.VendorID, err)
		}

		for i, item := range so.Items {
			_, err = tx.Exec(ctx, database.InsertSubOrderItemSQL,
				o.ID, so.VendorID, i, item.MenuItemID, item.Name, item.Price.String(), item.Quantity)
			if err != nil {
				return fmt.Errorf("failed to insert item %s of %s/%s: %w", item.MenuItemID, o.ID, so.VendorID, err)
			}
		}

		h := historyEntry(so, systemActor, o.CreatedAt)
		_, err = tx.Exec(ctx, database.InsertStatusLogSQL,
			o.ID, so.VendorID, string(h.Status), h.ChangedBy, h.ChangedAt, &note)
		if err != nil {
			return fmt.Errorf("failed to log initial status of %s/%s: %w", o.ID, so.VendorID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order %s: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, database.GetOrderSQL, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}

	if err := loadSubOrders(ctx, s.db, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, database.ListOrdersSQL,
		filter.VendorID, string(filter.Status), effectiveLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}

	if err := loadSubOrders(ctx, s.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) Mutate(ctx context.Context, orderID string, fn MutateFunc) (*models.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, database.LockOrderSQL, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}
	if err := loadSubOrders(ctx, tx, []*models.Order{o}); err != nil {
		return nil, err
	}

	before := statusSnapshot(o)
	changed, err := fn(o)
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	now := time.Now().UTC()
	o.Recompute()

	for _, so := range changedSubOrders(before, o) {
		h := historyEntry(so, systemActor, now)
		_, err = tx.Exec(ctx, database.UpdateSubOrderStatusSQL,
			o.ID, so.VendorID, string(so.Status), h.ChangedBy, h.ChangedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to update sub-order %s/%s: %w", o.ID, so.VendorID, err)
		}
		_, err = tx.Exec(ctx, database.InsertStatusLogSQL,
			o.ID, so.VendorID, string(h.Status), h.ChangedBy, h.ChangedAt, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to log status of %s/%s: %w", o.ID, so.VendorID, err)
		}
	}

	err = tx.QueryRow(ctx, database.UpdateOrderAggregateSQL,
		o.ID, string(o.Status), o.TotalAmount.String(), now).Scan(&o.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	o.UpdatedAt = now

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order %s: %w", o.ID, err)
	}

	s.logger.WithContext(ctx).Debug("order_mutated", "Order updated", "", map[string]interface{}{
		"order_id": o.ID,
		"version":  o.Version,
		"status":   string(o.Status),
	})
	return o, nil
}

func (s *PostgresStore) History(ctx context.Context, orderID string) ([]models.StatusHistory, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, database.OrderExistsSQL, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check order %s: %w", orderID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}

	rows, err := s.db.Query(ctx, database.GetStatusHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []models.StatusHistory
	for rows.Next() {
		var (
			entry  models.StatusHistory
			status string
		)
		if err := rows.Scan(&entry.VendorID, &status, &entry.ChangedBy, &entry.ChangedAt, &entry.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entry.Status = models.SubOrderStatus(status)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history of %s: %w", orderID, err)
	}
	return history, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// scanOrder reads the columns selected by GetOrderSQL
func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o      models.Order
		total  string
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.HubID,
		&o.CustomerName,
		&o.TableInfo,
		&total,
		&status,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total of order %s: %w", o.ID, err)
	}
	o.Status = models.OverallStatus(status)
	o.VendorOrders = []models.SubOrder{}
	return &o, nil
}

// loadSubOrders fills the sub-orders and line items of orders with two queries
func loadSubOrders(ctx context.Context, q queryer, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := q.Query(ctx, database.GetSubOrdersSQL, ids)
	if err != nil {
		return fmt.Errorf("failed to query sub-orders: %w", err)
	}
	for rows.Next() {
		var (
			orderID  string
			so       models.SubOrder
			subtotal string
			status   string
		)
		if err := rows.Scan(&orderID, &so.VendorID, &subtotal, &status, &so.UpdatedBy, &so.UpdatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan sub-order: %w", err)
		}
		if so.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			rows.Close()
			return fmt.Errorf("failed to parse subtotal of %s/%s: %w", orderID, so.VendorID, err)
		}
		so.Status = models.SubOrderStatus(status)
		so.Items = []models.LineItem{}
		if o, ok := byID[orderID]; ok {
			o.VendorOrders = append(o.VendorOrders, so)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate sub-orders: %w", err)
	}

	rows, err = q.Query(ctx, database.GetSubOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("failed to query sub-order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID, vendorID string
			item              models.LineItem
			price             string
		)
		if err := rows.Scan(&orderID, &vendorID, &item.MenuItemID, &item.Name, &price, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan sub-order item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("failed to parse price of %s: %w", item.MenuItemID, err)
		}
		o, ok := byID[orderID]
		if !ok {
			continue
		}
		if so, ok := o.SubOrder(vendorID); ok {
			so.Items = append(so.Items, item)
		}
	}
	return rows.Err()
}
