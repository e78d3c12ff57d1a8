package database

// Catalog and directory queries
const (
	GetMenuItemSQL = `
		SELECT id, vendor_id, name, price::text, available
		FROM menu_items WHERE id = $1`

	GetVendorSQL = `
		SELECT id, hub_id, name, is_active
		FROM vendors WHERE id = $1`
)

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, hub_id, customer_name, table_info, total_amount, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $8)`

	InsertSubOrderSQL = `
		INSERT INTO sub_orders (order_id, vendor_id, position, subtotal, status)
		VALUES ($1, $2, $3, $4::numeric, $5)`

	InsertSubOrderItemSQL = `
		INSERT INTO sub_order_items (order_id, vendor_id, position, menu_item_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`

	InsertStatusLogSQL = `
		INSERT INTO sub_order_status_log (order_id, vendor_id, status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6)`

	GetOrderSQL = `
		SELECT id, hub_id, customer_name, table_info, total_amount::text, status, version, created_at, updated_at
		FROM orders WHERE id = $1`

	LockOrderSQL = GetOrderSQL + ` FOR UPDATE`

	// ListOrdersSQL filters by vendor ($1) and overall status ($2) when they are non-empty
	ListOrdersSQL = `
		SELECT o.id, o.hub_id, o.customer_name, o.table_info, o.total_amount::text, o.status, o.version, o.created_at, o.updated_at
		FROM orders o
		WHERE ($1 = '' OR EXISTS (
				SELECT 1 FROM sub_orders s WHERE s.order_id = o.id AND s.vendor_id = $1))
		  AND ($2 = '' OR o.status = $2)
		ORDER BY o.created_at DESC
		LIMIT $3`

	GetSubOrdersSQL = `
		SELECT order_id, vendor_id, subtotal::text, status, updated_by, updated_at
		FROM sub_orders WHERE order_id = ANY($1)
		ORDER BY order_id, position`

	GetSubOrderItemsSQL = `
		SELECT order_id, vendor_id, menu_item_id, name, price::text, quantity
		FROM sub_order_items WHERE order_id = ANY($1)
		ORDER BY order_id, vendor_id, position`

	UpdateSubOrderStatusSQL = `
		UPDATE sub_orders SET status = $3, updated_by = $4, updated_at = $5
		WHERE order_id = $1 AND vendor_id = $2`

	UpdateOrderAggregateSQL = `
		UPDATE orders SET status = $2, total_amount = $3::numeric, version = version + 1, updated_at = $4
		WHERE id = $1
		RETURNING version`

	GetStatusHistorySQL = `
		SELECT vendor_id, status, changed_by, changed_at, notes
		FROM sub_order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`

	OrderExistsSQL = `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`
)
