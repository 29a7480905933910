package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CashierServicer defines the service methods needed by the cashier
// terminal. Satisfied by *service.CashierService.
type CashierServicer interface {
	Units(ctx context.Context, storeID uuid.UUID) ([]service.Unit, error)
	CancelOrder(ctx context.Context, storeID, orderID uuid.UUID, reason string) (*database.Order, error)
	DeliverPickup(ctx context.Context, storeID, orderID uuid.UUID, paymentMethod string) (*database.Order, error)
}

// CashierHandler handles the cashier terminal endpoints.
type CashierHandler struct {
	svc CashierServicer
	hub Notifier
}

// NewCashierHandler creates a new CashierHandler.
func NewCashierHandler(svc CashierServicer, hub Notifier) *CashierHandler {
	return &CashierHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers cashier endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}
func (h *CashierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cashier/units", h.Units)
	r.Post("/orders/{id}/cancel", h.Cancel)
	r.Post("/orders/{id}/deliver", h.Deliver)
}

// --- Request / Response types ---

type unitResponse struct {
	Kind         string          `json:"kind"`
	TableNumber  int32           `json:"table_number,omitempty"`
	CustomerName string          `json:"customer_name"`
	Total        string          `json:"total"`
	OrderCount   int             `json:"order_count"`
	Orders       []orderResponse `json:"orders"`
}

type unitsResponse struct {
	Units []unitResponse `json:"units"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type deliverRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// --- Handlers ---

// Units handles GET /stores/{sid}/cashier/units.
func (h *CashierHandler) Units(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	units, err := h.svc.Units(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: cashier units: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]unitResponse, len(units))
	for i, u := range units {
		resp[i] = toUnitResponse(u)
	}
	writeJSON(w, http.StatusOK, unitsResponse{Units: resp})
}

// Cancel handles POST /stores/{sid}/orders/{id}/cancel.
func (h *CashierHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.CancelOrder(r.Context(), storeID, orderID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrOrderResolved), errors.Is(err, service.ErrStatusConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: cancel order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.OrderStatusChanged(storeID, order.ID, order.Status)
	writeJSON(w, http.StatusOK, dbOrderToResponse(*order))
}

// Deliver handles POST /stores/{sid}/orders/{id}/deliver: the counter
// handover of a ready pickup order, settling it in the same step.
func (h *CashierHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.DeliverPickup(r.Context(), storeID, orderID, req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrNotPickup):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrOrderResolved), errors.Is(err, service.ErrStatusConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: deliver pickup: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.OrderStatusChanged(storeID, order.ID, order.Status)
	writeJSON(w, http.StatusOK, dbOrderToResponse(*order))
}

// --- Helpers ---

func toUnitResponse(u service.Unit) unitResponse {
	resp := unitResponse{
		Kind:         u.Kind,
		TableNumber:  u.TableNumber,
		CustomerName: u.CustomerName,
		Total:        u.Total.StringFixed(2),
		OrderCount:   u.OrderCount,
	}
	resp.Orders = make([]orderResponse, len(u.Orders))
	for i, ow := range u.Orders {
		resp.Orders[i] = orderWithItemsToResponse(ow)
	}
	return resp
}
