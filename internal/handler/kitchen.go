package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/lifecycle"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// KitchenServicer defines the service methods needed by the kitchen
// terminal. Satisfied by *service.KitchenService.
type KitchenServicer interface {
	Queue(ctx context.Context, storeID uuid.UUID) ([]service.OrderWithItems, error)
	Advance(ctx context.Context, storeID, orderID uuid.UUID, currentStatus string) (database.Order, error)
}

// KitchenHandler handles the kitchen display endpoints.
type KitchenHandler struct {
	svc KitchenServicer
	hub Notifier
}

// NewKitchenHandler creates a new KitchenHandler.
func NewKitchenHandler(svc KitchenServicer, hub Notifier) *KitchenHandler {
	return &KitchenHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers kitchen endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}/kitchen
func (h *KitchenHandler) RegisterRoutes(r chi.Router) {
	r.Get("/queue", h.Queue)
	r.Post("/orders/{id}/advance", h.Advance)
}

// --- Request / Response types ---

type advanceRequest struct {
	CurrentStatus string `json:"current_status"`
}

type queueResponse struct {
	Orders []orderResponse `json:"orders"`
}

// --- Handlers ---

// Queue handles GET /stores/{sid}/kitchen/queue.
func (h *KitchenHandler) Queue(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	queue, err := h.svc.Queue(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: kitchen queue: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	orders := make([]orderResponse, len(queue))
	for i, ow := range queue {
		orders[i] = orderWithItemsToResponse(ow)
	}
	writeJSON(w, http.StatusOK, queueResponse{Orders: orders})
}

// Advance handles POST /stores/{sid}/kitchen/orders/{id}/advance.
// The body carries the status the terminal last saw; a stale view gets a
// 409 back instead of a silent double-advance.
func (h *KitchenHandler) Advance(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.CurrentStatus == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "current_status is required"})
		return
	}

	order, err := h.svc.Advance(r.Context(), storeID, orderID, req.CurrentStatus)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrStatusConflict), errors.Is(err, lifecycle.ErrNoKitchenAdvance):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: kitchen advance: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.OrderStatusChanged(storeID, order.ID, order.Status)
	writeJSON(w, http.StatusOK, dbOrderToResponse(order))
}
