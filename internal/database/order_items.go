package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, product_name, quantity, unit_price, total_price,
	removed_ingredients, selected_addons, status, send_to_kitchen, created_at`

func scanOrderItem(row rowScanner) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(
		&it.ID,
		&it.OrderID,
		&it.ProductName,
		&it.Quantity,
		&it.UnitPrice,
		&it.TotalPrice,
		&it.RemovedIngredients,
		&it.SelectedAddons,
		&it.Status,
		&it.SendToKitchen,
		&it.CreatedAt,
	)
	return it, err
}

const createOrderItem = `
INSERT INTO order_items (
	order_id, product_name, quantity, unit_price, total_price,
	removed_ingredients, selected_addons, status, send_to_kitchen
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID            uuid.UUID
	ProductName        string
	Quantity           int32
	UnitPrice          pgtype.Numeric
	TotalPrice         pgtype.Numeric
	RemovedIngredients []byte
	SelectedAddons     []byte
	Status             string
	SendToKitchen      bool
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductName,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalPrice,
		arg.RemovedIngredients,
		arg.SelectedAddons,
		arg.Status,
		arg.SendToKitchen,
	)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY created_at ASC
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrderItems(rows)
}

const listOrderItemsByOrders = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = ANY($1::uuid[])
ORDER BY created_at ASC
`

// ListOrderItemsByOrders batch-fetches items for a set of orders so the
// aggregate table views need one query instead of one per order.
func (q *Queries) ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrders, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrderItems(rows)
}

const serveOrderItems = `
UPDATE order_items oi
SET status = 'entregue'
FROM orders o
WHERE oi.id = ANY($1::uuid[])
  AND o.id = oi.order_id
  AND o.store_id = $2
  AND oi.status NOT IN ('entregue', 'cancelado')
RETURNING oi.id, oi.order_id, oi.product_name, oi.quantity, oi.unit_price, oi.total_price,
	oi.removed_ingredients, oi.selected_addons, oi.status, oi.send_to_kitchen, oi.created_at
`

type ServeOrderItemsParams struct {
	ItemIDs []uuid.UUID
	StoreID uuid.UUID
}

// ServeOrderItems marks bar items delivered and returns the updated rows so
// the caller can reconcile each affected parent order. The join on orders
// keeps the write inside the caller's store.
func (q *Queries) ServeOrderItems(ctx context.Context, arg ServeOrderItemsParams) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, serveOrderItems, arg.ItemIDs, arg.StoreID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrderItems(rows)
}

const closeOrderItems = `
UPDATE order_items
SET status = $2
WHERE order_id = ANY($1::uuid[])
  AND status NOT IN ('entregue', 'cancelado')
`

type CloseOrderItemsParams struct {
	OrderIDs []uuid.UUID
	Status   string
}

// CloseOrderItems moves items in lockstep with their orders on table close.
func (q *Queries) CloseOrderItems(ctx context.Context, arg CloseOrderItemsParams) error {
	_, err := q.db.Exec(ctx, closeOrderItems, arg.OrderIDs, arg.Status)
	return err
}

const countOpenOrderItems = `
SELECT COUNT(*)
FROM order_items
WHERE order_id = $1
  AND status NOT IN ('entregue', 'cancelado')
`

// CountOpenOrderItems counts items still outside a terminal per-item state.
func (q *Queries) CountOpenOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOpenOrderItems, orderID).Scan(&n)
	return n, err
}

func collectOrderItems(rows pgx.Rows) ([]OrderItem, error) {
	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
