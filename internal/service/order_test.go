package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getStoreFn           func(ctx context.Context, id uuid.UUID) (database.Store, error)
	getNextOrderNumberFn func(ctx context.Context, storeID uuid.UUID) (int32, error)
	getCouponByCodeFn    func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error)
	redeemCouponFn       func(ctx context.Context, id uuid.UUID) (int32, error)
	createOrderFn        func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	createOrderItemFn    func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

func (m *mockOrderStore) GetStore(ctx context.Context, id uuid.UUID) (database.Store, error) {
	return m.getStoreFn(ctx, id)
}
func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context, storeID uuid.UUID) (int32, error) {
	return m.getNextOrderNumberFn(ctx, storeID)
}
func (m *mockOrderStore) GetCouponByCode(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
	return m.getCouponByCodeFn(ctx, arg)
}
func (m *mockOrderStore) RedeemCoupon(ctx context.Context, id uuid.UUID) (int32, error) {
	return m.redeemCouponFn(ctx, id)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	return m.createOrderItemFn(ctx, arg)
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

// newTestService creates an OrderService with mocked dependencies.
// store is the mock OrderStore that will be returned by the NewOrderStore factory.
func newTestService(store *mockOrderStore) (*OrderService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, newStore), tx
}

// defaultStore returns a mockOrderStore with sensible defaults for a basic
// order. Individual tests override the functions they care about.
func defaultStore(storeID uuid.UUID) *mockOrderStore {
	return &mockOrderStore{
		getStoreFn: func(ctx context.Context, id uuid.UUID) (database.Store, error) {
			if id == storeID {
				return database.Store{ID: storeID, Name: "Cantina", Slug: "cantina", TotalTables: 8}, nil
			}
			return database.Store{}, pgx.ErrNoRows
		},
		getNextOrderNumberFn: func(ctx context.Context, sid uuid.UUID) (int32, error) {
			return 1, nil
		},
		getCouponByCodeFn: func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
			return database.Coupon{}, pgx.ErrNoRows
		},
		redeemCouponFn: func(ctx context.Context, id uuid.UUID) (int32, error) {
			return 1, nil
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:                uuid.New(),
				StoreID:           arg.StoreID,
				OrderNumber:       arg.OrderNumber,
				Channel:           arg.Channel,
				Status:            arg.Status,
				TableNumber:       arg.TableNumber,
				CustomerName:      arg.CustomerName,
				IsPlaceholderName: arg.IsPlaceholderName,
				CustomerPhone:     arg.CustomerPhone,
				Address:           arg.Address,
				TotalPrice:        arg.TotalPrice,
				Discount:          arg.Discount,
				CouponCode:        arg.CouponCode,
				CouponID:          arg.CouponID,
				CreatedBy:         arg.CreatedBy,
			}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:                 uuid.New(),
				OrderID:            arg.OrderID,
				ProductName:        arg.ProductName,
				Quantity:           arg.Quantity,
				UnitPrice:          arg.UnitPrice,
				TotalPrice:         arg.TotalPrice,
				RemovedIngredients: arg.RemovedIngredients,
				SelectedAddons:     arg.SelectedAddons,
				Status:             arg.Status,
				SendToKitchen:      arg.SendToKitchen,
			}, nil
		},
	}
}

func basicReq(storeID uuid.UUID) CreateOrderRequest {
	return CreateOrderRequest{
		StoreID:      storeID,
		Channel:      enum.ChannelRetirada,
		CustomerName: "Ana Lima",
		Items: []CreateOrderItemRequest{
			{ProductName: "X-Salada", Quantity: 2, UnitPrice: "22.50", SendToKitchen: true},
		},
	}
}

// =====================
// Validation tests
// =====================

func TestCreateOrder_EmptyItems(t *testing.T) {
	svc, _ := newTestService(defaultStore(uuid.New()))

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		StoreID:      uuid.New(),
		Channel:      enum.ChannelRetirada,
		CustomerName: "Ana",
		Items:        nil,
	})
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestCreateOrder_InvalidChannel(t *testing.T) {
	svc, _ := newTestService(defaultStore(uuid.New()))

	req := basicReq(uuid.New())
	req.Channel = "drive_thru"
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got: %v", err)
	}
}

func TestCreateOrder_MesaWithoutTable(t *testing.T) {
	svc, _ := newTestService(defaultStore(uuid.New()))

	req := basicReq(uuid.New())
	req.Channel = enum.ChannelMesa
	req.TableNumber = 0
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrTableRequired) {
		t.Fatalf("expected ErrTableRequired, got: %v", err)
	}
}

func TestCreateOrder_EntregaWithoutAddress(t *testing.T) {
	svc, _ := newTestService(defaultStore(uuid.New()))

	req := basicReq(uuid.New())
	req.Channel = enum.ChannelEntrega
	req.Address = ""
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got: %v", err)
	}
}

func TestCreateOrder_TableOutOfRange(t *testing.T) {
	storeID := uuid.New()
	svc, _ := newTestService(defaultStore(storeID)) // store has 8 tables

	req := basicReq(storeID)
	req.Channel = enum.ChannelMesa
	req.TableNumber = 9
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrTableOutOfRange) {
		t.Fatalf("expected ErrTableOutOfRange, got: %v", err)
	}
}

func TestCreateOrder_MesaStoreNotFound(t *testing.T) {
	svc, _ := newTestService(defaultStore(uuid.New())) // store knows a different id

	req := basicReq(uuid.New())
	req.Channel = enum.ChannelMesa
	req.TableNumber = 3
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got: %v", err)
	}
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	storeID := uuid.New()
	svc, _ := newTestService(defaultStore(storeID))

	req := basicReq(storeID)
	req.Items[0].Quantity = 0
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestCreateOrder_BadUnitPrice(t *testing.T) {
	storeID := uuid.New()
	svc, _ := newTestService(defaultStore(storeID))

	req := basicReq(storeID)
	req.Items[0].UnitPrice = "muito caro"
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidUnitPrice) {
		t.Fatalf("expected ErrInvalidUnitPrice, got: %v", err)
	}
}

func TestCreateOrder_NegativeAddonPrice(t *testing.T) {
	storeID := uuid.New()
	svc, _ := newTestService(defaultStore(storeID))

	req := basicReq(storeID)
	req.Items[0].SelectedAddons = []AddonRequest{{Name: "Bacon", Price: "-2.00"}}
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidUnitPrice) {
		t.Fatalf("expected ErrInvalidUnitPrice, got: %v", err)
	}
}

// =====================
// Price calculation tests
// =====================

func TestCreateOrder_BasicPrice(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), StoreID: arg.StoreID, OrderNumber: arg.OrderNumber,
			Channel: arg.Channel, Status: arg.Status, TotalPrice: arg.TotalPrice, Discount: arg.Discount}, nil
	}
	var capturedItem database.CreateOrderItemParams
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		capturedItem = arg
		return database.OrderItem{ID: uuid.New(), OrderID: arg.OrderID, ProductName: arg.ProductName,
			Quantity: arg.Quantity, UnitPrice: arg.UnitPrice, TotalPrice: arg.TotalPrice, Status: arg.Status}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.CreateOrder(context.Background(), basicReq(storeID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// line total = 22.50 * 2 = 45.00
	if !numericEquals(capturedItem.TotalPrice, "45.00") {
		t.Errorf("item total_price: got %v, want 45.00", numericToDecimal(capturedItem.TotalPrice))
	}
	if !numericEquals(captured.TotalPrice, "45.00") {
		t.Errorf("order total_price: got %v, want 45.00", numericToDecimal(captured.TotalPrice))
	}
	if !numericEquals(captured.Discount, "0.00") {
		t.Errorf("order discount: got %v, want 0.00", numericToDecimal(captured.Discount))
	}
	if captured.Status != enum.OrderStatusPendente {
		t.Errorf("status: got %v, want pendente", captured.Status)
	}
	if captured.CreatedBy.Valid {
		t.Error("created_by should be null for storefront orders")
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
}

func TestCreateOrder_AddonsPrice(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	var capturedItem database.CreateOrderItemParams
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		capturedItem = arg
		return database.OrderItem{ID: uuid.New(), OrderID: arg.OrderID}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID)
	req.Items = []CreateOrderItemRequest{
		{
			ProductName: "X-Bacon",
			Quantity:    2,
			UnitPrice:   "25.00",
			SelectedAddons: []AddonRequest{
				{Name: "Bacon extra", Price: "4.00"},
				{Name: "Cheddar", Price: "3.50"},
			},
			SendToKitchen: true,
		},
	}
	_, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// line total = (25.00 + 4.00 + 3.50) * 2 = 65.00
	if !numericEquals(capturedItem.TotalPrice, "65.00") {
		t.Errorf("item total_price: got %v, want 65.00", numericToDecimal(capturedItem.TotalPrice))
	}
	if !strings.Contains(string(capturedItem.SelectedAddons), "Bacon extra") {
		t.Errorf("addon snapshot missing: %s", capturedItem.SelectedAddons)
	}
}

func TestCreateOrder_MultipleItems(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), StoreID: arg.StoreID, TotalPrice: arg.TotalPrice}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID)
	req.Items = []CreateOrderItemRequest{
		{ProductName: "X-Salada", Quantity: 2, UnitPrice: "22.50", SendToKitchen: true}, // 45.00
		{ProductName: "Suco de Laranja", Quantity: 3, UnitPrice: "8.00"},                // 24.00
	}
	result, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !numericEquals(captured.TotalPrice, "69.00") {
		t.Errorf("order total_price: got %v, want 69.00", numericToDecimal(captured.TotalPrice))
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
}

// =====================
// Mesa defaults
// =====================

func TestCreateOrder_MesaPlaceholderName(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), StoreID: arg.StoreID, Status: arg.Status,
			CustomerName: arg.CustomerName, IsPlaceholderName: arg.IsPlaceholderName}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID)
	req.Channel = enum.ChannelMesa
	req.TableNumber = 5
	req.CustomerName = ""
	req.CreatedBy = uuid.New()
	_, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.CustomerName != "Mesa 5" {
		t.Errorf("customer_name: got %q, want Mesa 5", captured.CustomerName)
	}
	if !captured.IsPlaceholderName {
		t.Error("is_placeholder_name should be true for an unnamed table order")
	}
	// Waiter-opened table orders skip pendente.
	if captured.Status != enum.OrderStatusAceito {
		t.Errorf("status: got %v, want aceito", captured.Status)
	}
	if !captured.TableNumber.Valid || captured.TableNumber.Int32 != 5 {
		t.Errorf("table_number: got %v, want 5", captured.TableNumber)
	}
	if !captured.CreatedBy.Valid {
		t.Error("created_by should be set for waiter orders")
	}
}

func TestCreateOrder_MesaNamedCustomer(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New()}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID)
	req.Channel = enum.ChannelMesa
	req.TableNumber = 2
	req.CustomerName = "Bruno"
	_, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.CustomerName != "Bruno" {
		t.Errorf("customer_name: got %q, want Bruno", captured.CustomerName)
	}
	if captured.IsPlaceholderName {
		t.Error("is_placeholder_name should be false for a named order")
	}
}

// =====================
// Coupon tests
// =====================

func TestCreateOrder_PercentCouponApplied(t *testing.T) {
	storeID := uuid.New()
	couponID := uuid.New()
	store := defaultStore(storeID)

	store.getCouponByCodeFn = func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
		return database.Coupon{
			ID:            couponID,
			StoreID:       storeID,
			Code:          "BEMVINDO10",
			DiscountType:  enum.DiscountTypePercent,
			DiscountValue: makeNumeric("10"),
			MinOrderValue: makeNumeric("0"),
			IsActive:      true,
		}, nil
	}
	redeemed := 0
	store.redeemCouponFn = func(ctx context.Context, id uuid.UUID) (int32, error) {
		if id != couponID {
			t.Errorf("redeemed wrong coupon: %v", id)
		}
		redeemed++
		return 1, nil
	}

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New()}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID) // gross 45.00
	req.CouponCode = "bemvindo10"
	_, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if redeemed != 1 {
		t.Errorf("expected 1 redemption, got %d", redeemed)
	}
	// discount = 10% of 45.00 = 4.50, net = 40.50
	if !numericEquals(captured.Discount, "4.50") {
		t.Errorf("discount: got %v, want 4.50", numericToDecimal(captured.Discount))
	}
	if !numericEquals(captured.TotalPrice, "40.50") {
		t.Errorf("total_price: got %v, want 40.50", numericToDecimal(captured.TotalPrice))
	}
	if !captured.CouponCode.Valid || captured.CouponCode.String != "BEMVINDO10" {
		t.Errorf("coupon_code: got %v, want canonical BEMVINDO10", captured.CouponCode)
	}
	if !captured.CouponID.Valid {
		t.Error("coupon_id should be set")
	}
}

func TestCreateOrder_FixedCouponClamped(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	store.getCouponByCodeFn = func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
		return database.Coupon{
			ID:            uuid.New(),
			Code:          "GIGANTE",
			DiscountType:  enum.DiscountTypeFixed,
			DiscountValue: makeNumeric("100.00"),
			MinOrderValue: makeNumeric("0"),
			IsActive:      true,
		}, nil
	}

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New()}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID) // gross 45.00
	req.CouponCode = "GIGANTE"
	_, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 100.00 fixed on a 45.00 order clamps to the gross.
	if !numericEquals(captured.Discount, "45.00") {
		t.Errorf("discount: got %v, want 45.00", numericToDecimal(captured.Discount))
	}
	if !numericEquals(captured.TotalPrice, "0.00") {
		t.Errorf("total_price: got %v, want 0.00", numericToDecimal(captured.TotalPrice))
	}
}

func TestCreateOrder_CouponRejected(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID) // coupon lookup defaults to ErrNoRows

	created := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created++
		return database.Order{ID: uuid.New()}, nil
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID)
	req.CouponCode = "NAOEXISTE"
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got: %v", err)
	}
	if created != 0 {
		t.Errorf("no order should be created on coupon rejection, got %d", created)
	}
}

func TestCreateOrder_CouponRaceLost(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	store.getCouponByCodeFn = func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
		return database.Coupon{
			ID:            uuid.New(),
			Code:          "ULTIMO",
			DiscountType:  enum.DiscountTypeFixed,
			DiscountValue: makeNumeric("5.00"),
			MinOrderValue: makeNumeric("0"),
			MaxUses:       pgtype.Int4{Int32: 10, Valid: true},
			UsedCount:     9,
			IsActive:      true,
		}, nil
	}
	// Another checkout took the last use between validate and redeem.
	store.redeemCouponFn = func(ctx context.Context, id uuid.UUID) (int32, error) {
		return 0, pgx.ErrNoRows
	}

	svc, _ := newTestService(store)
	req := basicReq(storeID)
	req.CouponCode = "ULTIMO"
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrCouponExhausted) {
		t.Fatalf("expected ErrCouponExhausted, got: %v", err)
	}
}

// =====================
// Order number tests
// =====================

func TestCreateOrder_OrderNumberFormat(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)
	store.getNextOrderNumberFn = func(ctx context.Context, sid uuid.UUID) (int32, error) {
		return 42, nil
	}

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber}, nil
	}

	svc, _ := newTestService(store)
	result, err := svc.CreateOrder(context.Background(), basicReq(storeID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.OrderNumber != "CMD-042" {
		t.Errorf("order number: got %v, want CMD-042", captured.OrderNumber)
	}
	if result.Order.OrderNumber != "CMD-042" {
		t.Errorf("result order number: got %v, want CMD-042", result.Order.OrderNumber)
	}
}

func TestCreateOrder_RetryOnUniqueViolation(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	createCallCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		createCallCount++
		if createCallCount == 1 {
			return database.Order{}, &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "orders_store_id_order_number_key",
			}
		}
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber}, nil
	}

	orderNumCallCount := 0
	store.getNextOrderNumberFn = func(ctx context.Context, sid uuid.UUID) (int32, error) {
		orderNumCallCount++
		return int32(orderNumCallCount), nil
	}

	svc, _ := newTestService(store)
	result, err := svc.CreateOrder(context.Background(), basicReq(storeID))
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if result == nil {
		t.Fatal("expected result, got nil")
	}
	if createCallCount != 2 {
		t.Errorf("expected 2 CreateOrder calls (1 fail + 1 success), got %d", createCallCount)
	}
	if orderNumCallCount != 2 {
		t.Errorf("expected 2 GetNextOrderNumber calls, got %d", orderNumCallCount)
	}
}

func TestCreateOrder_RetryExhausted(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "orders_store_id_order_number_key",
		}
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(storeID))
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "create order") {
		t.Errorf("expected 'create order' in error message, got: %v", err)
	}
}

func TestCreateOrder_NonUniqueErrorNotRetried(t *testing.T) {
	storeID := uuid.New()
	store := defaultStore(storeID)

	callCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		callCount++
		return database.Order{}, errors.New("some other DB error")
	}

	svc, _ := newTestService(store)
	_, err := svc.CreateOrder(context.Background(), basicReq(storeID))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("non-unique errors should not retry: expected 1 call, got %d", callCount)
	}
}

func TestCreateOrder_CommitError(t *testing.T) {
	storeID := uuid.New()
	svc, tx := newTestService(defaultStore(storeID))
	tx.commitErr = errors.New("connection reset")

	_, err := svc.CreateOrder(context.Background(), basicReq(storeID))
	if err == nil {
		t.Fatal("expected commit error, got nil")
	}
	if !strings.Contains(err.Error(), "commit tx") {
		t.Errorf("expected 'commit tx' in error, got: %v", err)
	}
}
