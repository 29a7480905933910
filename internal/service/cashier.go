package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the cashier service.
var (
	ErrOrderResolved = errors.New("order is already in a terminal state")
	ErrNotPickup     = errors.New("order is not a pickup order")
	ErrNotRevertible = errors.New("only delivered orders can be reverted")
)

// CashierStore defines the DB methods needed by the cashier terminal.
// Satisfied by *database.Queries (and its WithTx variant).
type CashierStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOpenOrders(ctx context.Context, storeID uuid.UUID) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
	CloseOrders(ctx context.Context, arg database.CloseOrdersParams) ([]uuid.UUID, error)
	CloseOrderItems(ctx context.Context, arg database.CloseOrderItemsParams) error
	RevertDeliveredOrder(ctx context.Context, arg database.RevertDeliveredOrderParams) (database.Order, error)
}

// NewCashierStore creates a CashierStore from a DBTX (pool or tx).
type NewCashierStore func(db database.DBTX) CashierStore

// Unit is one closeable unit on the cashier screen: a table grouping its
// open mesa orders, or a standalone pickup/delivery order.
type Unit struct {
	Kind         string // mesa, retirada or entrega
	TableNumber  int32  // zero for standalone units
	CustomerName string
	Total        decimal.Decimal
	OrderCount   int
	Orders       []OrderWithItems
}

// CashierService drives the cashier terminal: cross-channel aggregation,
// pickup handover, and individual cancellation.
type CashierService struct {
	pool     TxBeginner
	store    CashierStore
	newStore NewCashierStore
}

// NewCashierService creates a new CashierService.
func NewCashierService(pool TxBeginner, store CashierStore, newStore NewCashierStore) *CashierService {
	return &CashierService{pool: pool, store: store, newStore: newStore}
}

// Units aggregates every open order into closeable units: mesa orders
// grouped per table number, retirada and entrega orders standing alone.
// Tables come first in numeric order, then standalone units oldest first.
func (s *CashierService) Units(ctx context.Context, storeID uuid.UUID) ([]Unit, error) {
	orders, err := s.store.ListOpenOrders(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}

	withItems, err := attachItems(ctx, s.store, orders)
	if err != nil {
		return nil, err
	}

	byTable := make(map[int32][]OrderWithItems)
	var standalone []OrderWithItems
	for _, ow := range withItems {
		if ow.Order.Channel == enum.ChannelMesa && ow.Order.TableNumber.Valid {
			n := ow.Order.TableNumber.Int32
			byTable[n] = append(byTable[n], ow)
			continue
		}
		standalone = append(standalone, ow)
	}

	tableNumbers := make([]int32, 0, len(byTable))
	for n := range byTable {
		tableNumbers = append(tableNumbers, n)
	}
	sort.Slice(tableNumbers, func(i, j int) bool { return tableNumbers[i] < tableNumbers[j] })

	units := make([]Unit, 0, len(tableNumbers)+len(standalone))
	for _, n := range tableNumbers {
		group := byTable[n]
		unit := Unit{Kind: enum.ChannelMesa, TableNumber: n, OrderCount: len(group), Orders: group}
		name := ""
		namePlaceholder := true
		for _, ow := range group {
			unit.Total = unit.Total.Add(numericToDecimal(ow.Order.TotalPrice))
			name, namePlaceholder = lifecycle.ResolveName(name, namePlaceholder, ow.Order.CustomerName, ow.Order.IsPlaceholderName)
		}
		unit.CustomerName = name
		units = append(units, unit)
	}
	for _, ow := range standalone {
		units = append(units, Unit{
			Kind:         ow.Order.Channel,
			CustomerName: ow.Order.CustomerName,
			Total:        numericToDecimal(ow.Order.TotalPrice),
			OrderCount:   1,
			Orders:       []OrderWithItems{ow},
		})
	}
	return units, nil
}

// CancelOrder cancels one order as nao_pago with the given reason, its open
// items following in the same transaction. Orders already in a terminal
// state are rejected with ErrOrderResolved; an em_rota delivery cannot be
// cancelled out from under its courier.
func (s *CashierService) CancelOrder(ctx context.Context, storeID, orderID uuid.UUID, reason string) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := lifecycle.CanTransition(current.Channel, current.Status, enum.OrderStatusCancelado); err != nil {
		if lifecycle.IsTerminal(current.Status) {
			return nil, ErrOrderResolved
		}
		return nil, ErrStatusConflict
	}

	cancelReason := pgtype.Text{}
	if reason != "" {
		cancelReason = pgtype.Text{String: reason, Valid: true}
	}

	order, err := store.CancelOrder(ctx, database.CancelOrderParams{
		ID:           orderID,
		StoreID:      storeID,
		CancelReason: cancelReason,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.resolveConflict(ctx, store, storeID, orderID, ErrOrderResolved)
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	if err := store.CloseOrderItems(ctx, database.CloseOrderItemsParams{
		OrderIDs: []uuid.UUID{order.ID},
		Status:   enum.ItemStatusCancelado,
	}); err != nil {
		return nil, fmt.Errorf("cancel order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &order, nil
}

// DeliverPickup hands a ready pickup order over the counter: the order
// settles to concluido with the given payment method and its items close as
// entregue, all in one transaction.
func (s *CashierService) DeliverPickup(ctx context.Context, storeID, orderID uuid.UUID, paymentMethod string) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Channel != enum.ChannelRetirada {
		return nil, ErrNotPickup
	}
	if order.Status != enum.OrderStatusEnviado {
		if lifecycle.IsTerminal(order.Status) {
			return nil, ErrOrderResolved
		}
		return nil, ErrStatusConflict
	}

	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodCardMachine
	}

	closed, err := store.CloseOrders(ctx, database.CloseOrdersParams{
		IDs:           []uuid.UUID{order.ID},
		Status:        enum.OrderStatusConcluido,
		PaymentMethod: pgtype.Text{String: paymentMethod, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("close order: %w", err)
	}
	if len(closed) == 0 {
		return nil, ErrOrderResolved
	}
	if err := store.CloseOrderItems(ctx, database.CloseOrderItemsParams{
		OrderIDs: closed,
		Status:   enum.ItemStatusEntregue,
	}); err != nil {
		return nil, fmt.Errorf("close order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	order.Status = enum.OrderStatusConcluido
	order.PaymentMethod = pgtype.Text{String: paymentMethod, Valid: true}
	return &order, nil
}

// RevertDelivered is the operator escape hatch for a mis-tapped serve: it
// moves an entregue order back to enviado. Any other current status is
// rejected.
func (s *CashierService) RevertDelivered(ctx context.Context, storeID, orderID uuid.UUID) (*database.Order, error) {
	order, err := s.store.RevertDeliveredOrder(ctx, database.RevertDeliveredOrderParams{
		ID:      orderID,
		StoreID: storeID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.resolveConflict(ctx, s.store, storeID, orderID, ErrNotRevertible)
		}
		return nil, fmt.Errorf("revert delivered order: %w", err)
	}
	return &order, nil
}

// OrderDetail returns one order with its items for terminal drill-down.
func (s *CashierService) OrderDetail(ctx context.Context, storeID, orderID uuid.UUID) (*OrderWithItems, error) {
	order, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	items, err := s.store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &OrderWithItems{Order: order, Items: items}, nil
}

// resolveConflict distinguishes a missing order from one whose current
// status failed a conditional update's predicate.
func (s *CashierService) resolveConflict(ctx context.Context, store CashierStore, storeID, orderID uuid.UUID, conflict error) error {
	if _, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order: %w", err)
	}
	return conflict
}
