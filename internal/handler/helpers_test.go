package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const testJWTSecret = "test-secret-for-handlers"

// --- Mock Notifier ---

type statusChange struct {
	storeID uuid.UUID
	orderID uuid.UUID
	status  string
}

type mockHub struct {
	mu      sync.Mutex
	changes []statusChange
}

func (m *mockHub) OrderStatusChanged(storeID, orderID uuid.UUID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, statusChange{storeID: storeID, orderID: orderID, status: status})
}

func (m *mockHub) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changes)
}

func (m *mockHub) last() statusChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changes[len(m.changes)-1]
}

// --- Request helpers ---

func testClaims(storeID uuid.UUID, role string) *auth.Claims {
	return &auth.Claims{
		UserID:  uuid.New(),
		StoreID: storeID,
		Role:    role,
	}
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.StoreID, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := buildRequest(t, method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := buildRequest(t, method, path, body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func buildRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, path, nil)
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Test data builders ---

func testNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		panic(err)
	}
	return n
}

func testDBOrder(storeID uuid.UUID) database.Order {
	now := time.Now()
	return database.Order{
		ID:               uuid.New(),
		StoreID:          storeID,
		OrderNumber:      "CMD-001",
		Channel:          "retirada",
		Status:           "pendente",
		CustomerName:     "Ana Lima",
		TotalPrice:       testNumeric("45.00"),
		Discount:         testNumeric("0.00"),
		CreatedAt:        now,
		LastStatusChange: now,
	}
}

func testDBMesaOrder(storeID uuid.UUID, table int32) database.Order {
	o := testDBOrder(storeID)
	o.Channel = "mesa"
	o.Status = "aceito"
	o.TableNumber = pgtype.Int4{Int32: table, Valid: true}
	return o
}

func testDBOrderItem(orderID uuid.UUID) database.OrderItem {
	return database.OrderItem{
		ID:            uuid.New(),
		OrderID:       orderID,
		ProductName:   "X-Salada",
		Quantity:      2,
		UnitPrice:     testNumeric("22.50"),
		TotalPrice:    testNumeric("45.00"),
		Status:        "pendente",
		SendToKitchen: true,
		CreatedAt:     time.Now(),
	}
}
