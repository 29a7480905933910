package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrStatusConflict is returned when a compare-and-swap status write finds
// the order no longer in the expected source state (another terminal got
// there first, or the caller acted on a stale view).
var ErrStatusConflict = errors.New("order status changed, please retry")

// ErrOrderNotFound is returned when an order does not exist in the store.
var ErrOrderNotFound = errors.New("order not found")

// KitchenStore defines the DB methods needed by the kitchen queue.
type KitchenStore interface {
	ListKitchenQueue(ctx context.Context, storeID uuid.UUID) ([]database.Order, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	AdvanceOrderStatus(ctx context.Context, arg database.AdvanceOrderStatusParams) (database.Order, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
}

// OrderWithItems pairs an order row with its item rows for queue views.
// An order with zero items is valid and renders as empty.
type OrderWithItems struct {
	Order database.Order
	Items []database.OrderItem
}

// KitchenService is the kitchen terminal's single-lane queue.
type KitchenService struct {
	store KitchenStore
}

// NewKitchenService creates a new KitchenService.
func NewKitchenService(store KitchenStore) *KitchenService {
	return &KitchenService{store: store}
}

// Queue returns orders in {pendente, aceito, preparando}, oldest first,
// with items.
func (s *KitchenService) Queue(ctx context.Context, storeID uuid.UUID) ([]OrderWithItems, error) {
	orders, err := s.store.ListKitchenQueue(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list kitchen queue: %w", err)
	}
	return attachItems(ctx, s.store, orders)
}

// Advance moves one order a single step along the kitchen ladder:
// pendente → aceito → preparando → enviado. currentStatus is the status
// the terminal observed; if the row has moved on since, the conditional
// update matches nothing and the caller gets ErrStatusConflict instead of
// a silent double-advance.
func (s *KitchenService) Advance(ctx context.Context, storeID, orderID uuid.UUID, currentStatus string) (database.Order, error) {
	next, err := lifecycle.NextKitchenStatus(currentStatus)
	if err != nil {
		return database.Order{}, err
	}

	order, err := s.store.AdvanceOrderStatus(ctx, database.AdvanceOrderStatusParams{
		ID:         orderID,
		StoreID:    storeID,
		Status:     next,
		FromStatus: currentStatus,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing order from a lost race.
			if _, getErr := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID}); getErr != nil {
				if errors.Is(getErr, pgx.ErrNoRows) {
					return database.Order{}, ErrOrderNotFound
				}
				return database.Order{}, fmt.Errorf("get order: %w", getErr)
			}
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("advance order status: %w", err)
	}
	return order, nil
}

// attachItems batch-fetches items for a set of orders and zips them back
// onto their parents, preserving order ordering.
func attachItems(ctx context.Context, store interface {
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
}, orders []database.Order) ([]OrderWithItems, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := store.ListOrderItemsByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	byOrder := make(map[uuid.UUID][]database.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	result := make([]OrderWithItems, len(orders))
	for i, o := range orders {
		result[i] = OrderWithItems{Order: o, Items: byOrder[o.ID]}
	}
	return result, nil
}
