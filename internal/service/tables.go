package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the table service.
var (
	ErrOrderClosed          = errors.New("order is already closed")
	ErrEmptyBatch           = errors.New("no ids selected")
	ErrInvalidPin           = errors.New("invalid override PIN")
	ErrPinRequired          = errors.New("override PIN is required for forced close")
	ErrCouponAlreadyApplied = errors.New("a different coupon is already applied to this order")
)

// TableStore defines the DB methods needed by the waiter and cashier
// table flows. Satisfied by *database.Queries (and its WithTx variant).
type TableStore interface {
	CouponStore
	GetStore(ctx context.Context, id uuid.UUID) (database.Store, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOpenTableOrders(ctx context.Context, storeID uuid.UUID) ([]database.Order, error)
	ListOpenOrdersForTable(ctx context.Context, arg database.ListOpenOrdersForTableParams) ([]database.Order, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	CloseOrders(ctx context.Context, arg database.CloseOrdersParams) ([]uuid.UUID, error)
	CloseOrderItems(ctx context.Context, arg database.CloseOrderItemsParams) error
	ServeOrders(ctx context.Context, arg database.ServeOrdersParams) ([]uuid.UUID, error)
	ServeOrderItems(ctx context.Context, arg database.ServeOrderItemsParams) ([]database.OrderItem, error)
	CountOpenOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	PromoteServedOrder(ctx context.Context, arg database.PromoteServedOrderParams) (uuid.UUID, error)
}

// NewTableStore creates a TableStore from a DBTX (pool or tx).
type NewTableStore func(db database.DBTX) TableStore

// TableView is the derived state of one physical table. It is never
// stored: every read regroups the open mesa orders by table number.
type TableView struct {
	Number        int32
	Occupied      bool
	CustomerName  string
	Total         decimal.Decimal
	OrderCount    int
	HasReadyItems bool
	IsPreparing   bool
	HasBarItems   bool
	Orders        []OrderWithItems
}

// CloseTableRequest closes every open order for one table number.
type CloseTableRequest struct {
	StoreID       uuid.UUID
	TableNumber   int32
	PaymentMethod string
	Forced        bool
	Pin           string
	CancelReason  string
}

// CloseTableResult reports how many orders the close touched. Zero with
// success means the table was already free (idempotent close).
type CloseTableResult struct {
	ClosedOrderIDs []uuid.UUID
	Status         string
}

// AddItemsRequest extends an existing table order with more items.
type AddItemsRequest struct {
	StoreID      uuid.UUID
	OrderID      uuid.UUID
	CustomerName string
	CouponCode   string
	Items        []CreateOrderItemRequest
}

// ServeBarItemsResult lists the served items and any parent orders that
// were auto-promoted to entregue because no open items remained.
type ServeBarItemsResult struct {
	ServedItemIDs    []uuid.UUID
	PromotedOrderIDs []uuid.UUID
}

// TableService drives the waiter terminal and the cashier's table close.
type TableService struct {
	pool     TxBeginner
	store    TableStore
	newStore NewTableStore
}

// NewTableService creates a new TableService.
func NewTableService(pool TxBeginner, store TableStore, newStore NewTableStore) *TableService {
	return &TableService{pool: pool, store: store, newStore: newStore}
}

// TablesStatus derives the N virtual table views for a store. Tables with
// no open orders are reported as free; everything else is recomputed from
// the raw order and item rows on every call.
func (s *TableService) TablesStatus(ctx context.Context, storeID uuid.UUID) ([]TableView, error) {
	st, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}

	orders, err := s.store.ListOpenTableOrders(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list open table orders: %w", err)
	}

	withItems, err := attachItems(ctx, s.store, orders)
	if err != nil {
		return nil, err
	}

	byTable := make(map[int32][]OrderWithItems)
	for _, ow := range withItems {
		if !ow.Order.TableNumber.Valid {
			continue
		}
		n := ow.Order.TableNumber.Int32
		byTable[n] = append(byTable[n], ow)
	}

	views := make([]TableView, st.TotalTables)
	for i := range views {
		num := int32(i + 1)
		views[i] = deriveTableView(num, byTable[num])
	}
	return views, nil
}

// deriveTableView folds a table's open orders into the aggregate view.
func deriveTableView(number int32, orders []OrderWithItems) TableView {
	view := TableView{Number: number}
	if len(orders) == 0 {
		return view
	}

	view.Occupied = true
	view.OrderCount = len(orders)
	view.Orders = orders

	name := ""
	namePlaceholder := true
	for _, ow := range orders {
		o := ow.Order
		view.Total = view.Total.Add(numericToDecimal(o.TotalPrice))
		name, namePlaceholder = lifecycle.ResolveName(name, namePlaceholder, o.CustomerName, o.IsPlaceholderName)

		switch o.Status {
		case enum.OrderStatusEnviado:
			view.HasReadyItems = true
		case enum.OrderStatusAceito, enum.OrderStatusPreparando:
			view.IsPreparing = true
		}

		for _, it := range ow.Items {
			if !it.SendToKitchen && !lifecycle.IsItemTerminal(it.Status) {
				view.HasBarItems = true
			}
		}
	}
	view.CustomerName = name
	return view
}

// AddItems extends an existing table order. The previous gross is
// reconstructed from (total_price + discount), the new items are priced on
// top, and any coupon is re-validated against the new gross rather than
// blindly re-applied. Totals, name upgrade, item inserts, and the status
// reset to aceito all land in one transaction.
func (s *TableService) AddItems(ctx context.Context, req AddItemsRequest) (*CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, database.GetOrderParams{ID: req.OrderID, StoreID: req.StoreID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if lifecycle.IsTerminal(order.Status) {
		return nil, ErrOrderClosed
	}

	items, deltaGross, err := priceItems(req.Items)
	if err != nil {
		return nil, err
	}

	previousGross := numericToDecimal(order.TotalPrice).Add(numericToDecimal(order.Discount))
	newGross := previousGross.Add(deltaGross)

	// Coupon re-evaluation. The gross only grows here, so the minimum
	// cannot newly fail, but expiry and usage limits can.
	discount := decimal.Zero
	couponCode := order.CouponCode
	couponID := order.CouponID
	code := req.CouponCode
	if code == "" && order.CouponCode.Valid {
		code = order.CouponCode.String
	}
	if code != "" {
		if req.CouponCode != "" && order.CouponCode.Valid && !strings.EqualFold(req.CouponCode, order.CouponCode.String) {
			return nil, ErrCouponAlreadyApplied
		}
		coupon, err := ValidateCoupon(ctx, store, req.StoreID, code, newGross)
		switch {
		case err == nil:
			discount = coupon.Discount
			if !order.CouponID.Valid {
				// Newly applied on this extend: consume a use now.
				if _, err := store.RedeemCoupon(ctx, coupon.CouponID); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, ErrCouponExhausted
					}
					return nil, fmt.Errorf("redeem coupon: %w", err)
				}
			}
			couponCode = pgtype.Text{String: coupon.Code, Valid: true}
			couponID = pgtype.UUID{Bytes: coupon.CouponID, Valid: true}
		case IsCouponError(err) && order.CouponID.Valid:
			// A previously applied coupon no longer validates (expired or
			// exhausted since). The discount is dropped; the extend itself
			// still goes through.
			couponCode = pgtype.Text{}
			couponID = pgtype.UUID{}
		default:
			return nil, err
		}
	}

	newTotal := newGross.Sub(discount)
	if newTotal.IsNegative() {
		newTotal = decimal.Zero
	}

	name, placeholder := lifecycle.ResolveName(order.CustomerName, order.IsPlaceholderName, req.CustomerName, false)

	updated, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:                req.OrderID,
		StoreID:           req.StoreID,
		TotalPrice:        decimalToNumeric(newTotal),
		Discount:          decimalToNumeric(discount),
		CouponCode:        couponCode,
		CouponID:          couponID,
		CustomerName:      name,
		IsPlaceholderName: placeholder,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderClosed
		}
		return nil, fmt.Errorf("update order totals: %w", err)
	}

	var created []database.OrderItem
	for _, pi := range items {
		pi.params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, pi.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		created = append(created, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: updated, Items: created}, nil
}

// CloseTable moves every open order for the table to a terminal state in
// one transaction, items in lockstep. A normal close settles to concluido
// with the given payment method; a forced close requires the store's
// override PIN and cancels the orders as nao_pago.
func (s *TableService) CloseTable(ctx context.Context, req CloseTableRequest) (*CloseTableResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	status := enum.OrderStatusConcluido
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodCardMachine
	}
	cancelReason := pgtype.Text{}

	if req.Forced {
		st, err := store.GetStore(ctx, req.StoreID)
		if err != nil {
			return nil, fmt.Errorf("get store: %w", err)
		}
		if req.Pin == "" {
			return nil, ErrPinRequired
		}
		if !st.OverridePin.Valid || st.OverridePin.String != req.Pin {
			return nil, ErrInvalidPin
		}
		status = enum.OrderStatusCancelado
		paymentMethod = enum.PaymentMethodNaoPago
		reason := req.CancelReason
		if reason == "" {
			reason = "fechamento forcado"
		}
		cancelReason = pgtype.Text{String: reason, Valid: true}
	}

	orders, err := store.ListOpenOrdersForTable(ctx, database.ListOpenOrdersForTableParams{
		StoreID:     req.StoreID,
		TableNumber: req.TableNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("list open orders for table: %w", err)
	}
	if len(orders) == 0 {
		// Table already free: closing twice is a no-op success.
		return &CloseTableResult{Status: status}, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	closed, err := store.CloseOrders(ctx, database.CloseOrdersParams{
		IDs:           ids,
		Status:        status,
		PaymentMethod: pgtype.Text{String: paymentMethod, Valid: true},
		CancelReason:  cancelReason,
	})
	if err != nil {
		return nil, fmt.Errorf("close orders: %w", err)
	}

	itemStatus := enum.ItemStatusEntregue
	if status == enum.OrderStatusCancelado {
		itemStatus = enum.ItemStatusCancelado
	}
	if err := store.CloseOrderItems(ctx, database.CloseOrderItemsParams{
		OrderIDs: closed,
		Status:   itemStatus,
	}); err != nil {
		return nil, fmt.Errorf("close order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CloseTableResult{ClosedOrderIDs: closed, Status: status}, nil
}

// ServeReadyOrders bulk-moves kitchen-ready (enviado) orders to entregue,
// their items following. Orders that left enviado since the waiter's last
// refresh are skipped; the returned ids are the ones actually served.
func (s *TableService) ServeReadyOrders(ctx context.Context, storeID uuid.UUID, orderIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	served, err := store.ServeOrders(ctx, database.ServeOrdersParams{IDs: orderIDs, StoreID: storeID})
	if err != nil {
		return nil, fmt.Errorf("serve orders: %w", err)
	}
	if len(served) > 0 {
		if err := store.CloseOrderItems(ctx, database.CloseOrderItemsParams{
			OrderIDs: served,
			Status:   enum.ItemStatusEntregue,
		}); err != nil {
			return nil, fmt.Errorf("serve order items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return served, nil
}

// ServeBarItems marks individual bar items delivered, then reconciles each
// affected parent: once zero items remain open, the order itself is
// promoted to entregue. This is the one place per-item and per-order state
// meet.
func (s *TableService) ServeBarItems(ctx context.Context, storeID uuid.UUID, itemIDs []uuid.UUID) (*ServeBarItemsResult, error) {
	if len(itemIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	served, err := store.ServeOrderItems(ctx, database.ServeOrderItemsParams{ItemIDs: itemIDs, StoreID: storeID})
	if err != nil {
		return nil, fmt.Errorf("serve order items: %w", err)
	}

	result := &ServeBarItemsResult{}
	seen := make(map[uuid.UUID]bool)
	for _, it := range served {
		result.ServedItemIDs = append(result.ServedItemIDs, it.ID)
		if seen[it.OrderID] {
			continue
		}
		seen[it.OrderID] = true

		open, err := store.CountOpenOrderItems(ctx, it.OrderID)
		if err != nil {
			return nil, fmt.Errorf("count open order items: %w", err)
		}
		if open > 0 {
			continue
		}
		promoted, err := store.PromoteServedOrder(ctx, database.PromoteServedOrderParams{ID: it.OrderID, StoreID: storeID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Parent already terminal; nothing to reconcile.
				continue
			}
			return nil, fmt.Errorf("promote served order: %w", err)
		}
		result.PromotedOrderIDs = append(result.PromotedOrderIDs, promoted)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}
