package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems       = errors.New("items are required")
	ErrInvalidChannel   = errors.New("invalid channel")
	ErrInvalidQuantity  = errors.New("quantity must be > 0")
	ErrInvalidUnitPrice = errors.New("invalid unit_price")
	ErrTableRequired    = errors.New("table_number is required for mesa orders")
	ErrAddressRequired  = errors.New("address is required for entrega orders")
	ErrTableOutOfRange  = errors.New("table_number outside the store's table range")
	ErrStoreNotFound    = errors.New("store not found")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	CouponStore
	GetStore(ctx context.Context, id uuid.UUID) (database.Store, error)
	GetNextOrderNumber(ctx context.Context, storeID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// AddonRequest is one selected add-on snapshot (name + price, no FK).
type AddonRequest struct {
	Name  string
	Price string
}

// CreateOrderItemRequest is a single cart line. Prices arrive as decimal
// strings and are snapshotted verbatim onto the item row.
type CreateOrderItemRequest struct {
	ProductName        string
	Quantity           int32
	UnitPrice          string
	RemovedIngredients []string
	SelectedAddons     []AddonRequest
	SendToKitchen      bool
}

// CreateOrderRequest is the validated input for creating an order, from
// either the storefront checkout or a waiter opening a table.
type CreateOrderRequest struct {
	StoreID       uuid.UUID
	CreatedBy     uuid.UUID // zero for storefront orders
	Channel       string
	TableNumber   int32
	CustomerName  string
	CustomerPhone string
	Address       string
	CouponCode    string
	Items         []CreateOrderItemRequest
}

// CreateOrderResult is the full created order with items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order creation.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// processedItem holds prepared item params pending the order id.
type processedItem struct {
	params database.CreateOrderItemParams
}

// CreateOrder validates, prices, and creates an order with its items in a
// single transaction: there is never an order row without its item rows.
// Coupon redemption happens in the same transaction, so the usage counter
// can neither under- nor double-count a racing last use.
// Retries up to maxOrderNumberRetries times on order_number unique
// constraint violations (concurrent transactions reading the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	switch req.Channel {
	case enum.ChannelMesa, enum.ChannelRetirada, enum.ChannelEntrega:
	default:
		return nil, ErrInvalidChannel
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	if req.Channel == enum.ChannelMesa && req.TableNumber <= 0 {
		return nil, ErrTableRequired
	}
	if req.Channel == enum.ChannelEntrega && req.Address == "" {
		return nil, ErrAddressRequired
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_store_id_order_number_key"
	}
	return false
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if req.Channel == enum.ChannelMesa {
		st, err := store.GetStore(ctx, req.StoreID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrStoreNotFound
			}
			return nil, fmt.Errorf("get store: %w", err)
		}
		if req.TableNumber > st.TotalTables {
			return nil, ErrTableOutOfRange
		}
	}

	nextNum, err := store.GetNextOrderNumber(ctx, req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("CMD-%03d", nextNum)

	items, gross, err := priceItems(req.Items)
	if err != nil {
		return nil, err
	}

	// Coupon: validate against the gross and redeem inside this tx.
	discount := decimal.Zero
	couponCode := pgtype.Text{}
	couponID := pgtype.UUID{}
	if req.CouponCode != "" {
		coupon, err := ValidateCoupon(ctx, store, req.StoreID, req.CouponCode, gross)
		if err != nil {
			return nil, err
		}
		if _, err := store.RedeemCoupon(ctx, coupon.CouponID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrCouponExhausted
			}
			return nil, fmt.Errorf("redeem coupon: %w", err)
		}
		discount = coupon.Discount
		couponCode = pgtype.Text{String: coupon.Code, Valid: true}
		couponID = pgtype.UUID{Bytes: coupon.CouponID, Valid: true}
	}

	totalPrice := gross.Sub(discount)
	if totalPrice.IsNegative() {
		totalPrice = decimal.Zero
	}

	// Table orders a waiter opens go straight to aceito; storefront pickup
	// and delivery orders wait in pendente for the kitchen to accept.
	status := enum.OrderStatusPendente
	if req.Channel == enum.ChannelMesa {
		status = enum.OrderStatusAceito
	}

	customerName := req.CustomerName
	isPlaceholder := false
	if req.Channel == enum.ChannelMesa && customerName == "" {
		customerName = lifecycle.PlaceholderName(req.TableNumber)
		isPlaceholder = true
	}

	tableNumber := pgtype.Int4{}
	if req.Channel == enum.ChannelMesa {
		tableNumber = pgtype.Int4{Int32: req.TableNumber, Valid: true}
	}
	customerPhone := pgtype.Text{}
	if req.CustomerPhone != "" {
		customerPhone = pgtype.Text{String: req.CustomerPhone, Valid: true}
	}
	address := pgtype.Text{}
	if req.Address != "" {
		address = pgtype.Text{String: req.Address, Valid: true}
	}
	createdBy := pgtype.UUID{}
	if req.CreatedBy != uuid.Nil {
		createdBy = pgtype.UUID{Bytes: req.CreatedBy, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		StoreID:           req.StoreID,
		OrderNumber:       orderNumber,
		Channel:           req.Channel,
		Status:            status,
		TableNumber:       tableNumber,
		CustomerName:      customerName,
		IsPlaceholderName: isPlaceholder,
		CustomerPhone:     customerPhone,
		Address:           address,
		TotalPrice:        decimalToNumeric(totalPrice),
		Discount:          decimalToNumeric(discount),
		CouponCode:        couponCode,
		CouponID:          couponID,
		CreatedBy:         createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
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

	return &CreateOrderResult{Order: order, Items: created}, nil
}

// priceItems validates and prices cart lines: unit price plus add-ons,
// times quantity, with the ingredient and add-on snapshots serialized for
// the item row. Returns the prepared params and the gross subtotal.
func priceItems(reqItems []CreateOrderItemRequest) ([]processedItem, decimal.Decimal, error) {
	gross := decimal.Zero
	var items []processedItem
	for i, item := range reqItems {
		if item.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("item[%d]: %w", i, ErrInvalidUnitPrice)
		}

		addonsTotal := decimal.Zero
		addons := make([]addonSnapshot, len(item.SelectedAddons))
		for j, a := range item.SelectedAddons {
			price, err := decimal.NewFromString(a.Price)
			if err != nil || price.IsNegative() {
				return nil, decimal.Zero, fmt.Errorf("item[%d].addons[%d]: %w", i, j, ErrInvalidUnitPrice)
			}
			addonsTotal = addonsTotal.Add(price)
			addons[j] = addonSnapshot{Name: a.Name, Price: price.StringFixed(2)}
		}

		lineTotal := unitPrice.Add(addonsTotal).Mul(decimal.NewFromInt32(item.Quantity))
		gross = gross.Add(lineTotal)

		removedJSON, err := json.Marshal(item.RemovedIngredients)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("item[%d]: marshal removed ingredients: %w", i, err)
		}
		addonsJSON, err := json.Marshal(addons)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("item[%d]: marshal addons: %w", i, err)
		}

		items = append(items, processedItem{
			params: database.CreateOrderItemParams{
				ProductName:        item.ProductName,
				Quantity:           item.Quantity,
				UnitPrice:          decimalToNumeric(unitPrice),
				TotalPrice:         decimalToNumeric(lineTotal),
				RemovedIngredients: removedJSON,
				SelectedAddons:     addonsJSON,
				Status:             enum.ItemStatusPendente,
				SendToKitchen:      item.SendToKitchen,
			},
		})
	}
	return items, gross, nil
}

// IsOrderValidationError checks if the error is a known validation error
// from order creation that should result in 400 Bad Request.
func IsOrderValidationError(err error) bool {
	return errors.Is(err, ErrEmptyItems) ||
		errors.Is(err, ErrInvalidChannel) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidUnitPrice) ||
		errors.Is(err, ErrTableRequired) ||
		errors.Is(err, ErrAddressRequired) ||
		errors.Is(err, ErrTableOutOfRange) ||
		IsCouponError(err)
}

// addonSnapshot is the serialized add-on shape stored on the item row.
type addonSnapshot struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
