package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CourierServicer defines the service methods needed by the courier
// terminal. Satisfied by *service.CourierService.
type CourierServicer interface {
	Available(ctx context.Context, storeID uuid.UUID) (*service.DeliveryPool, error)
	Active(ctx context.Context, storeID, courierID uuid.UUID) ([]service.OrderWithItems, error)
	Claim(ctx context.Context, storeID, courierID uuid.UUID, orderIDs []uuid.UUID) (*service.ClaimResult, error)
	Complete(ctx context.Context, storeID, courierID, orderID uuid.UUID) (*database.Order, error)
}

// CourierHandler handles the courier terminal endpoints. The courier
// identity always comes from the JWT claims, never from the request body.
type CourierHandler struct {
	svc CourierServicer
	hub Notifier
}

// NewCourierHandler creates a new CourierHandler.
func NewCourierHandler(svc CourierServicer, hub Notifier) *CourierHandler {
	return &CourierHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers courier endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}/deliveries
func (h *CourierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/available", h.Available)
	r.Get("/active", h.Active)
	r.Post("/claim", h.Claim)
	r.Post("/{id}/complete", h.Complete)
}

// --- Request / Response types ---

type deliveryPoolResponse struct {
	Claimable []orderResponse `json:"claimable"`
	Preparing []orderResponse `json:"preparing"`
}

type activeDeliveriesResponse struct {
	Deliveries []orderResponse `json:"deliveries"`
}

type claimRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids"`
}

type claimResponse struct {
	Claimed   []uuid.UUID `json:"claimed"`
	Conflicts []uuid.UUID `json:"conflicts"`
}

// --- Handlers ---

// Available handles GET /stores/{sid}/deliveries/available.
func (h *CourierHandler) Available(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	pool, err := h.svc.Available(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: available deliveries: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, deliveryPoolResponse{
		Claimable: toOrderResponses(pool.Claimable),
		Preparing: toOrderResponses(pool.Preparing),
	})
}

// Active handles GET /stores/{sid}/deliveries/active.
func (h *CourierHandler) Active(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	deliveries, err := h.svc.Active(r.Context(), storeID, claims.UserID)
	if err != nil {
		log.Printf("ERROR: active deliveries: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, activeDeliveriesResponse{Deliveries: toOrderResponses(deliveries)})
}

// Claim handles POST /stores/{sid}/deliveries/claim. Partial success is
// the normal case under contention: the response splits the batch into
// claimed and conflicted ids, and the terminal re-renders from that.
func (h *CourierHandler) Claim(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Claim(r.Context(), storeID, claims.UserID, req.OrderIDs)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: claim deliveries: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	for _, id := range result.Claimed {
		h.hub.OrderStatusChanged(storeID, id, enum.OrderStatusEmRota)
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Claimed:   result.Claimed,
		Conflicts: result.Conflicts,
	})
}

// Complete handles POST /stores/{sid}/deliveries/{id}/complete.
func (h *CourierHandler) Complete(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, err := h.svc.Complete(r.Context(), storeID, claims.UserID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrNotYours):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrStatusConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: complete delivery: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.OrderStatusChanged(storeID, order.ID, order.Status)
	writeJSON(w, http.StatusOK, dbOrderToResponse(*order))
}

// --- Helpers ---

func toOrderResponses(orders []service.OrderWithItems) []orderResponse {
	resp := make([]orderResponse, len(orders))
	for i, ow := range orders {
		resp[i] = orderWithItemsToResponse(ow)
	}
	return resp
}
