package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TableServicer defines the service methods needed by the waiter terminal.
// Satisfied by *service.TableService.
type TableServicer interface {
	TablesStatus(ctx context.Context, storeID uuid.UUID) ([]service.TableView, error)
	AddItems(ctx context.Context, req service.AddItemsRequest) (*service.CreateOrderResult, error)
	CloseTable(ctx context.Context, req service.CloseTableRequest) (*service.CloseTableResult, error)
	ServeReadyOrders(ctx context.Context, storeID uuid.UUID, orderIDs []uuid.UUID) ([]uuid.UUID, error)
	ServeBarItems(ctx context.Context, storeID uuid.UUID, itemIDs []uuid.UUID) (*service.ServeBarItemsResult, error)
}

// TableHandler handles the waiter terminal endpoints. Opening a table goes
// through the same order creation path as the storefront, so the handler
// also takes a CheckoutServicer.
type TableHandler struct {
	svc    TableServicer
	orders CheckoutServicer
	hub    Notifier
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableServicer, orders CheckoutServicer, hub Notifier) *TableHandler {
	return &TableHandler{svc: svc, orders: orders, hub: hub}
}

// RegisterRoutes registers waiter endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tables", h.Status)
	r.Post("/tables/{num}/orders", h.Open)
	r.Post("/tables/{num}/close", h.Close)
	r.Post("/orders/{id}/items", h.AddItems)
	r.Post("/orders/serve", h.ServeReady)
	r.Post("/items/serve", h.ServeBar)
}

// --- Request / Response types ---

type tableViewResponse struct {
	Number        int32           `json:"number"`
	Occupied      bool            `json:"occupied"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Total         string          `json:"total"`
	OrderCount    int             `json:"order_count"`
	HasReadyItems bool            `json:"has_ready_items"`
	IsPreparing   bool            `json:"is_preparing"`
	HasBarItems   bool            `json:"has_bar_items"`
	Orders        []orderResponse `json:"orders,omitempty"`
}

type tablesStatusResponse struct {
	Tables []tableViewResponse `json:"tables"`
}

type openTableRequest struct {
	CustomerName string            `json:"customer_name"`
	CouponCode   string            `json:"coupon_code"`
	Items        []cartItemRequest `json:"items"`
}

type addItemsRequest struct {
	CustomerName string            `json:"customer_name"`
	CouponCode   string            `json:"coupon_code"`
	Items        []cartItemRequest `json:"items"`
}

type closeTableRequest struct {
	PaymentMethod string `json:"payment_method"`
	Forced        bool   `json:"forced"`
	Pin           string `json:"pin"`
	CancelReason  string `json:"cancel_reason"`
}

type closeTableResponse struct {
	ClosedOrderIDs []uuid.UUID `json:"closed_order_ids"`
	Status         string      `json:"status"`
}

type serveOrdersRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids"`
}

type serveOrdersResponse struct {
	ServedOrderIDs []uuid.UUID `json:"served_order_ids"`
}

type serveItemsRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
}

type serveItemsResponse struct {
	ServedItemIDs    []uuid.UUID `json:"served_item_ids"`
	PromotedOrderIDs []uuid.UUID `json:"promoted_order_ids"`
}

// --- Handlers ---

// Status handles GET /stores/{sid}/tables.
func (h *TableHandler) Status(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	views, err := h.svc.TablesStatus(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, service.ErrStoreNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: tables status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	tables := make([]tableViewResponse, len(views))
	for i, v := range views {
		tables[i] = toTableViewResponse(v)
	}
	writeJSON(w, http.StatusOK, tablesStatusResponse{Tables: tables})
}

// Open handles POST /stores/{sid}/tables/{num}/orders: a waiter opening
// (or stacking another order onto) a physical table.
func (h *TableHandler) Open(w http.ResponseWriter, r *http.Request) {
	storeID, tableNumber, ok := parseStoreAndTable(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req openTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		StoreID:      storeID,
		CreatedBy:    claims.UserID,
		Channel:      enum.ChannelMesa,
		TableNumber:  tableNumber,
		CustomerName: req.CustomerName,
		CouponCode:   req.CouponCode,
		Items:        toServiceItems(req.Items),
	})
	if err != nil {
		if service.IsOrderValidationError(err) || service.IsCouponError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, service.ErrStoreNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: open table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.hub.OrderStatusChanged(storeID, result.Order.ID, result.Order.Status)
	writeJSON(w, http.StatusCreated, orderWithItemsToResponse(service.OrderWithItems{
		Order: result.Order,
		Items: result.Items,
	}))
}

// AddItems handles POST /stores/{sid}/orders/{id}/items.
func (h *TableHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.AddItems(r.Context(), service.AddItemsRequest{
		StoreID:      storeID,
		OrderID:      orderID,
		CustomerName: req.CustomerName,
		CouponCode:   req.CouponCode,
		Items:        toServiceItems(req.Items),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrOrderClosed), errors.Is(err, service.ErrCouponAlreadyApplied):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case service.IsOrderValidationError(err) || service.IsCouponError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: add items: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.OrderStatusChanged(storeID, result.Order.ID, result.Order.Status)
	writeJSON(w, http.StatusOK, orderWithItemsToResponse(service.OrderWithItems{
		Order: result.Order,
		Items: result.Items,
	}))
}

// Close handles POST /stores/{sid}/tables/{num}/close. Closing a table
// with no open orders succeeds as a no-op, so a double-tap is harmless.
func (h *TableHandler) Close(w http.ResponseWriter, r *http.Request) {
	storeID, tableNumber, ok := parseStoreAndTable(w, r)
	if !ok {
		return
	}

	var req closeTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.CloseTable(r.Context(), service.CloseTableRequest{
		StoreID:       storeID,
		TableNumber:   tableNumber,
		PaymentMethod: req.PaymentMethod,
		Forced:        req.Forced,
		Pin:           req.Pin,
		CancelReason:  req.CancelReason,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPinRequired):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidPin):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: close table: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	for _, id := range result.ClosedOrderIDs {
		h.hub.OrderStatusChanged(storeID, id, result.Status)
	}
	writeJSON(w, http.StatusOK, closeTableResponse{
		ClosedOrderIDs: result.ClosedOrderIDs,
		Status:         result.Status,
	})
}

// ServeReady handles POST /stores/{sid}/orders/serve.
func (h *TableHandler) ServeReady(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	var req serveOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	served, err := h.svc.ServeReadyOrders(r.Context(), storeID, req.OrderIDs)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: serve orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	for _, id := range served {
		h.hub.OrderStatusChanged(storeID, id, enum.OrderStatusEntregue)
	}
	writeJSON(w, http.StatusOK, serveOrdersResponse{ServedOrderIDs: served})
}

// ServeBar handles POST /stores/{sid}/items/serve.
func (h *TableHandler) ServeBar(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	var req serveItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.ServeBarItems(r.Context(), storeID, req.ItemIDs)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: serve items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	for _, id := range result.PromotedOrderIDs {
		h.hub.OrderStatusChanged(storeID, id, enum.OrderStatusEntregue)
	}
	writeJSON(w, http.StatusOK, serveItemsResponse{
		ServedItemIDs:    result.ServedItemIDs,
		PromotedOrderIDs: result.PromotedOrderIDs,
	})
}

// --- Helpers ---

func parseStoreAndTable(w http.ResponseWriter, r *http.Request) (uuid.UUID, int32, bool) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return uuid.Nil, 0, false
	}
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil || num <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table number"})
		return uuid.Nil, 0, false
	}
	return storeID, int32(num), true
}

func toTableViewResponse(v service.TableView) tableViewResponse {
	resp := tableViewResponse{
		Number:        v.Number,
		Occupied:      v.Occupied,
		CustomerName:  v.CustomerName,
		Total:         v.Total.StringFixed(2),
		OrderCount:    v.OrderCount,
		HasReadyItems: v.HasReadyItems,
		IsPreparing:   v.IsPreparing,
		HasBarItems:   v.HasBarItems,
	}
	if len(v.Orders) > 0 {
		resp.Orders = make([]orderResponse, len(v.Orders))
		for i, ow := range v.Orders {
			resp.Orders[i] = orderWithItemsToResponse(ow)
		}
	}
	return resp
}
