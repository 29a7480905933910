package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponHandler handles the public pre-checkout coupon check. It is a pure
// read: redemption only ever happens inside the order transaction.
type CouponHandler struct {
	store service.CouponStore
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(store service.CouponStore) *CouponHandler {
	return &CouponHandler{store: store}
}

// RegisterRoutes registers coupon endpoints on the given Chi router.
// Expected to be mounted at /stores/{sid}.
func (h *CouponHandler) RegisterRoutes(r chi.Router) {
	r.Post("/coupons/validate", h.Validate)
}

// --- Request / Response types ---

type validateCouponRequest struct {
	Code     string `json:"code"`
	Subtotal string `json:"subtotal"`
}

type validateCouponResponse struct {
	Code     string `json:"code"`
	Discount string `json:"discount"`
	Total    string `json:"total"`
}

// --- Handlers ---

// Validate handles POST /stores/{sid}/coupons/validate.
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	subtotal, err := decimal.NewFromString(req.Subtotal)
	if err != nil || subtotal.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subtotal"})
		return
	}

	result, err := service.ValidateCoupon(r.Context(), h.store, storeID, req.Code, subtotal)
	if err != nil {
		if service.IsCouponError(err) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: validate coupon: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Code:     result.Code,
		Discount: result.Discount.StringFixed(2),
		Total:    subtotal.Sub(result.Discount).StringFixed(2),
	})
}
