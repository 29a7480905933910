package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, store_id, order_number, channel, status, table_number,
	customer_name, is_placeholder_name, customer_phone, address,
	total_price, discount, coupon_code, coupon_id, payment_method,
	cancel_reason, courier_id, created_by, created_at, last_status_change`

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.StoreID,
		&o.OrderNumber,
		&o.Channel,
		&o.Status,
		&o.TableNumber,
		&o.CustomerName,
		&o.IsPlaceholderName,
		&o.CustomerPhone,
		&o.Address,
		&o.TotalPrice,
		&o.Discount,
		&o.CouponCode,
		&o.CouponID,
		&o.PaymentMethod,
		&o.CancelReason,
		&o.CourierID,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.LastStatusChange,
	)
	return o, err
}

const getNextOrderNumber = `
SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1
FROM orders
WHERE store_id = $1
`

// GetNextOrderNumber returns the next sequential number for CMD-NNN order
// numbers. Concurrent callers can race to the same number; the unique
// constraint plus the service retry loop resolve it.
func (q *Queries) GetNextOrderNumber(ctx context.Context, storeID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber, storeID).Scan(&n)
	return n, err
}

const createOrder = `
INSERT INTO orders (
	store_id, order_number, channel, status, table_number,
	customer_name, is_placeholder_name, customer_phone, address,
	total_price, discount, coupon_code, coupon_id, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	StoreID           uuid.UUID
	OrderNumber       string
	Channel           string
	Status            string
	TableNumber       pgtype.Int4
	CustomerName      string
	IsPlaceholderName bool
	CustomerPhone     pgtype.Text
	Address           pgtype.Text
	TotalPrice        pgtype.Numeric
	Discount          pgtype.Numeric
	CouponCode        pgtype.Text
	CouponID          pgtype.UUID
	CreatedBy         pgtype.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.StoreID,
		arg.OrderNumber,
		arg.Channel,
		arg.Status,
		arg.TableNumber,
		arg.CustomerName,
		arg.IsPlaceholderName,
		arg.CustomerPhone,
		arg.Address,
		arg.TotalPrice,
		arg.Discount,
		arg.CouponCode,
		arg.CouponID,
		arg.CreatedBy,
	)
	return scanOrder(row)
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND store_id = $2
`

type GetOrderParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, arg.ID, arg.StoreID)
	return scanOrder(row)
}

const listKitchenQueue = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND status IN ('pendente', 'aceito', 'preparando')
ORDER BY created_at ASC
`

// ListKitchenQueue returns the kitchen lane, oldest first.
func (q *Queries) ListKitchenQueue(ctx context.Context, storeID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listKitchenQueue, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listOpenOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1
  AND status NOT IN ('entregue', 'concluido', 'cancelado')
ORDER BY created_at ASC
`

// ListOpenOrders returns every non-terminal order for a store, all channels.
func (q *Queries) ListOpenOrders(ctx context.Context, storeID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOpenOrders, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listOpenTableOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND channel = 'mesa'
  AND status NOT IN ('entregue', 'concluido', 'cancelado')
ORDER BY created_at ASC
`

func (q *Queries) ListOpenTableOrders(ctx context.Context, storeID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOpenTableOrders, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listOpenOrdersForTable = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND channel = 'mesa' AND table_number = $2
  AND status NOT IN ('entregue', 'concluido', 'cancelado')
ORDER BY created_at ASC
`

type ListOpenOrdersForTableParams struct {
	StoreID     uuid.UUID
	TableNumber int32
}

func (q *Queries) ListOpenOrdersForTable(ctx context.Context, arg ListOpenOrdersForTableParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOpenOrdersForTable, arg.StoreID, arg.TableNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const advanceOrderStatus = `
UPDATE orders
SET status = $3, last_status_change = now()
WHERE id = $1 AND store_id = $2 AND status = $4
RETURNING ` + orderColumns

type AdvanceOrderStatusParams struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	Status     string
	FromStatus string
}

// AdvanceOrderStatus is a compare-and-swap: the write only lands if the
// order is still in FromStatus. pgx.ErrNoRows signals a lost race.
func (q *Queries) AdvanceOrderStatus(ctx context.Context, arg AdvanceOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, advanceOrderStatus, arg.ID, arg.StoreID, arg.Status, arg.FromStatus)
	return scanOrder(row)
}

const updateOrderTotals = `
UPDATE orders
SET total_price = $3,
    discount = $4,
    coupon_code = $5,
    coupon_id = $6,
    customer_name = $7,
    is_placeholder_name = $8,
    status = 'aceito',
    last_status_change = now()
WHERE id = $1 AND store_id = $2
  AND status NOT IN ('entregue', 'concluido', 'cancelado')
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	TotalPrice        pgtype.Numeric
	Discount          pgtype.Numeric
	CouponCode        pgtype.Text
	CouponID          pgtype.UUID
	CustomerName      string
	IsPlaceholderName bool
}

// UpdateOrderTotals rewrites the money fields after items are added and
// drops the order back to 'aceito' so the kitchen sees the new items.
func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID,
		arg.StoreID,
		arg.TotalPrice,
		arg.Discount,
		arg.CouponCode,
		arg.CouponID,
		arg.CustomerName,
		arg.IsPlaceholderName,
	)
	return scanOrder(row)
}

const closeOrders = `
UPDATE orders
SET status = $2,
    payment_method = $3,
    cancel_reason = $4,
    last_status_change = now()
WHERE id = ANY($1::uuid[])
  AND status NOT IN ('concluido', 'cancelado')
RETURNING id
`

type CloseOrdersParams struct {
	IDs           []uuid.UUID
	Status        string
	PaymentMethod pgtype.Text
	CancelReason  pgtype.Text
}

// CloseOrders bulk-moves a table's orders to a terminal state. Already
// closed orders are skipped, which makes a duplicate close a no-op.
func (q *Queries) CloseOrders(ctx context.Context, arg CloseOrdersParams) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, closeOrders, arg.IDs, arg.Status, arg.PaymentMethod, arg.CancelReason)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

const serveOrders = `
UPDATE orders
SET status = 'entregue', last_status_change = now()
WHERE id = ANY($1::uuid[]) AND store_id = $2 AND status = 'enviado'
RETURNING id
`

type ServeOrdersParams struct {
	IDs     []uuid.UUID
	StoreID uuid.UUID
}

// ServeOrders marks kitchen-ready orders as delivered to the table. Orders
// that left 'enviado' in the meantime are silently skipped and reported by
// omission from the returned id list.
func (q *Queries) ServeOrders(ctx context.Context, arg ServeOrdersParams) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, serveOrders, arg.IDs, arg.StoreID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

const promoteServedOrder = `
UPDATE orders
SET status = 'entregue', last_status_change = now()
WHERE id = $1 AND store_id = $2
  AND status NOT IN ('entregue', 'concluido', 'cancelado')
RETURNING id
`

type PromoteServedOrderParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

// PromoteServedOrder moves a parent order to 'entregue' once all its items
// are terminal. Returns pgx.ErrNoRows if the order is already terminal.
func (q *Queries) PromoteServedOrder(ctx context.Context, arg PromoteServedOrderParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, promoteServedOrder, arg.ID, arg.StoreID).Scan(&id)
	return id, err
}

const cancelOrder = `
UPDATE orders
SET status = 'cancelado',
    cancel_reason = $3,
    payment_method = 'nao_pago',
    last_status_change = now()
WHERE id = $1 AND store_id = $2
  AND status NOT IN ('em_rota', 'entregue', 'concluido', 'cancelado')
RETURNING ` + orderColumns

type CancelOrderParams struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	CancelReason pgtype.Text
}

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, cancelOrder, arg.ID, arg.StoreID, arg.CancelReason)
	return scanOrder(row)
}

const listAvailableDeliveries = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND channel = 'entrega'
  AND status IN ('preparando', 'enviado')
ORDER BY created_at ASC
`

// ListAvailableDeliveries returns the courier pool: 'enviado' orders are
// claimable, 'preparando' ones are shown as not yet ready.
func (q *Queries) ListAvailableDeliveries(ctx context.Context, storeID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listAvailableDeliveries, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listCourierDeliveries = `
SELECT ` + orderColumns + `
FROM orders
WHERE store_id = $1 AND courier_id = $2 AND status = 'em_rota'
ORDER BY last_status_change ASC
`

type ListCourierDeliveriesParams struct {
	StoreID   uuid.UUID
	CourierID uuid.UUID
}

func (q *Queries) ListCourierDeliveries(ctx context.Context, arg ListCourierDeliveriesParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listCourierDeliveries, arg.StoreID, arg.CourierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const claimDeliveries = `
UPDATE orders
SET status = 'em_rota', courier_id = $3, last_status_change = now()
WHERE id = ANY($1::uuid[]) AND store_id = $2
  AND channel = 'entrega' AND status = 'enviado'
RETURNING id
`

type ClaimDeliveriesParams struct {
	IDs       []uuid.UUID
	StoreID   uuid.UUID
	CourierID uuid.UUID
}

// ClaimDeliveries assigns a batch of ready deliveries to one courier in a
// single conditional update. Orders another courier grabbed first fail the
// status predicate and drop out of the returned set.
func (q *Queries) ClaimDeliveries(ctx context.Context, arg ClaimDeliveriesParams) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, claimDeliveries, arg.IDs, arg.StoreID, arg.CourierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

const completeDelivery = `
UPDATE orders
SET status = 'entregue', last_status_change = now()
WHERE id = $1 AND store_id = $2 AND courier_id = $3 AND status = 'em_rota'
RETURNING ` + orderColumns

type CompleteDeliveryParams struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	CourierID uuid.UUID
}

func (q *Queries) CompleteDelivery(ctx context.Context, arg CompleteDeliveryParams) (Order, error) {
	row := q.db.QueryRow(ctx, completeDelivery, arg.ID, arg.StoreID, arg.CourierID)
	return scanOrder(row)
}

const revertDeliveredOrder = `
UPDATE orders
SET status = 'enviado', last_status_change = now()
WHERE id = $1 AND store_id = $2 AND status = 'entregue'
RETURNING ` + orderColumns

type RevertDeliveredOrderParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

// RevertDeliveredOrder is the operator escape hatch for a mis-tapped serve.
func (q *Queries) RevertDeliveredOrder(ctx context.Context, arg RevertDeliveredOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, revertDeliveredOrder, arg.ID, arg.StoreID)
	return scanOrder(row)
}

// --- Helpers ---

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
