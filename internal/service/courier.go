package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotYours signals a completion attempt on a delivery the courier never
// claimed (or no longer holds).
var ErrNotYours = errors.New("delivery is not assigned to this courier")

// CourierStore defines the DB methods needed by the courier terminal.
// Satisfied by *database.Queries.
type CourierStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListAvailableDeliveries(ctx context.Context, storeID uuid.UUID) ([]database.Order, error)
	ListCourierDeliveries(ctx context.Context, arg database.ListCourierDeliveriesParams) ([]database.Order, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	ClaimDeliveries(ctx context.Context, arg database.ClaimDeliveriesParams) ([]uuid.UUID, error)
	CompleteDelivery(ctx context.Context, arg database.CompleteDeliveryParams) (database.Order, error)
}

// DeliveryPool splits the visible delivery orders into claimable ones
// (enviado) and informational not-yet-ready ones (preparando).
type DeliveryPool struct {
	Claimable []OrderWithItems
	Preparing []OrderWithItems
}

// ClaimResult reports a batch claim's partial success: ids this courier
// won, and ids another courier (or a cancellation) got to first.
type ClaimResult struct {
	Claimed   []uuid.UUID
	Conflicts []uuid.UUID
}

// CourierService drives the courier terminal's two-phase claim protocol.
type CourierService struct {
	store CourierStore
}

// NewCourierService creates a new CourierService.
func NewCourierService(store CourierStore) *CourierService {
	return &CourierService{store: store}
}

// Available returns the store's delivery pool, visible to every courier.
func (s *CourierService) Available(ctx context.Context, storeID uuid.UUID) (*DeliveryPool, error) {
	orders, err := s.store.ListAvailableDeliveries(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list available deliveries: %w", err)
	}

	withItems, err := attachItems(ctx, s.store, orders)
	if err != nil {
		return nil, err
	}

	pool := &DeliveryPool{}
	for _, ow := range withItems {
		if ow.Order.Status == enum.OrderStatusEnviado {
			pool.Claimable = append(pool.Claimable, ow)
		} else {
			pool.Preparing = append(pool.Preparing, ow)
		}
	}
	return pool, nil
}

// Active returns the deliveries currently en route with this courier.
func (s *CourierService) Active(ctx context.Context, storeID, courierID uuid.UUID) ([]OrderWithItems, error) {
	orders, err := s.store.ListCourierDeliveries(ctx, database.ListCourierDeliveriesParams{
		StoreID:   storeID,
		CourierID: courierID,
	})
	if err != nil {
		return nil, fmt.Errorf("list courier deliveries: %w", err)
	}
	return attachItems(ctx, s.store, orders)
}

// Claim assigns a batch of ready deliveries to the courier in one
// conditional update. Ids that were no longer claimable come back in
// Conflicts instead of failing the whole batch.
func (s *CourierService) Claim(ctx context.Context, storeID, courierID uuid.UUID, orderIDs []uuid.UUID) (*ClaimResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	claimed, err := s.store.ClaimDeliveries(ctx, database.ClaimDeliveriesParams{
		IDs:       orderIDs,
		StoreID:   storeID,
		CourierID: courierID,
	})
	if err != nil {
		return nil, fmt.Errorf("claim deliveries: %w", err)
	}

	won := make(map[uuid.UUID]bool, len(claimed))
	for _, id := range claimed {
		won[id] = true
	}
	result := &ClaimResult{Claimed: claimed}
	for _, id := range orderIDs {
		if !won[id] {
			result.Conflicts = append(result.Conflicts, id)
		}
	}
	return result, nil
}

// Complete marks one of the courier's en-route deliveries as entregue.
func (s *CourierService) Complete(ctx context.Context, storeID, courierID, orderID uuid.UUID) (*database.Order, error) {
	order, err := s.store.CompleteDelivery(ctx, database.CompleteDeliveryParams{
		ID:        orderID,
		StoreID:   storeID,
		CourierID: courierID,
	})
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complete delivery: %w", err)
	}

	// The conditional update matched nothing. Figure out why.
	existing, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.Status == enum.OrderStatusEmRota &&
		(!existing.CourierID.Valid || uuid.UUID(existing.CourierID.Bytes) != courierID) {
		return nil, ErrNotYours
	}
	return nil, ErrStatusConflict
}
