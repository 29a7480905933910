package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock CouponStore ---

type mockCouponStore struct {
	getCouponByCodeFn func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error)
	redeemCouponFn    func(ctx context.Context, id uuid.UUID) (int32, error)
}

func (m *mockCouponStore) GetCouponByCode(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
	if m.getCouponByCodeFn != nil {
		return m.getCouponByCodeFn(ctx, arg)
	}
	return database.Coupon{}, pgx.ErrNoRows
}

func (m *mockCouponStore) RedeemCoupon(ctx context.Context, id uuid.UUID) (int32, error) {
	if m.redeemCouponFn != nil {
		return m.redeemCouponFn(ctx, id)
	}
	return 0, pgx.ErrNoRows
}

func setupCouponRouter(store *mockCouponStore) *chi.Mux {
	h := handler.NewCouponHandler(store)
	r := chi.NewRouter()
	r.Route("/stores/{sid}", h.RegisterRoutes)
	return r
}

func testPercentCoupon(storeID uuid.UUID, code, value string) database.Coupon {
	return database.Coupon{
		ID:            uuid.New(),
		StoreID:       storeID,
		Code:          code,
		DiscountType:  "percent",
		DiscountValue: testNumeric(value),
		MinOrderValue: testNumeric("0"),
		IsActive:      true,
	}
}

// --- Tests ---

func TestCouponValidate_PercentDiscount(t *testing.T) {
	storeID := uuid.New()
	coupon := testPercentCoupon(storeID, "BEMVINDO10", "10")

	store := &mockCouponStore{
		getCouponByCodeFn: func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
			if arg.StoreID != storeID {
				t.Errorf("store_id: got %v, want %v", arg.StoreID, storeID)
			}
			if arg.Code != "bemvindo10" {
				t.Errorf("code: got %v, want bemvindo10 (forwarded verbatim)", arg.Code)
			}
			return coupon, nil
		},
	}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"code":     "bemvindo10",
		"subtotal": "80.00",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["code"] != "BEMVINDO10" {
		t.Errorf("code: got %v, want BEMVINDO10 (canonical casing)", resp["code"])
	}
	if resp["discount"] != "8.00" {
		t.Errorf("discount: got %v, want 8.00", resp["discount"])
	}
	if resp["total"] != "72.00" {
		t.Errorf("total: got %v, want 72.00", resp["total"])
	}
}

func TestCouponValidate_DiscountClampedToSubtotal(t *testing.T) {
	storeID := uuid.New()
	// 150% discount must clamp to the subtotal, never go negative
	coupon := testPercentCoupon(storeID, "TUDO150", "150")

	store := &mockCouponStore{
		getCouponByCodeFn: func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
			return coupon, nil
		},
	}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"code":     "TUDO150",
		"subtotal": "100.00",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["discount"] != "100.00" {
		t.Errorf("discount: got %v, want 100.00 (clamped)", resp["discount"])
	}
	if resp["total"] != "0.00" {
		t.Errorf("total: got %v, want 0.00", resp["total"])
	}
}

func TestCouponValidate_NotFound(t *testing.T) {
	storeID := uuid.New()
	store := &mockCouponStore{}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"code":     "NAOEXISTE",
		"subtotal": "50.00",
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "coupon not found" {
		t.Errorf("error: got %v, want 'coupon not found'", resp["error"])
	}
}

func TestCouponValidate_BelowMinimum(t *testing.T) {
	storeID := uuid.New()
	coupon := testPercentCoupon(storeID, "PRIMEIRA20", "20")
	coupon.MinOrderValue = testNumeric("60.00")

	store := &mockCouponStore{
		getCouponByCodeFn: func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
			return coupon, nil
		},
	}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"code":     "PRIMEIRA20",
		"subtotal": "45.00",
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
}

func TestCouponValidate_Exhausted(t *testing.T) {
	storeID := uuid.New()
	coupon := testPercentCoupon(storeID, "LIMITADO", "10")
	coupon.MaxUses = pgtype.Int4{Int32: 5, Valid: true}
	coupon.UsedCount = 5

	store := &mockCouponStore{
		getCouponByCodeFn: func(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
			return coupon, nil
		},
	}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"code":     "LIMITADO",
		"subtotal": "50.00",
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "coupon usage limit reached" {
		t.Errorf("error: got %v, want 'coupon usage limit reached'", resp["error"])
	}
}

func TestCouponValidate_MissingCode(t *testing.T) {
	storeID := uuid.New()
	store := &mockCouponStore{}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"subtotal": "50.00",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestCouponValidate_InvalidSubtotal(t *testing.T) {
	storeID := uuid.New()
	store := &mockCouponStore{}

	router := setupCouponRouter(store)
	rr := doRequest(t, router, "POST", "/stores/"+storeID.String()+"/coupons/validate", map[string]string{
		"code":     "BEMVINDO10",
		"subtotal": "-10",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}
