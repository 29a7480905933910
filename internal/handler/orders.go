package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Notifier pushes order status deltas to a store's subscribed terminals.
// Satisfied by *ws.Hub; narrow interface for testability.
type Notifier interface {
	OrderStatusChanged(storeID, orderID uuid.UUID, status string)
}

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.CashierService; narrow interface for testability.
type OrderServicer interface {
	OrderDetail(ctx context.Context, storeID, orderID uuid.UUID) (*service.OrderWithItems, error)
	RevertDelivered(ctx context.Context, storeID, orderID uuid.UUID) (*database.Order, error)
}

// OrderHandler handles the order detail read and the operator revert.
type OrderHandler struct {
	svc OrderServicer
	hub Notifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, hub Notifier) *OrderHandler {
	return &OrderHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Post("/{id}/revert", h.Revert)
}

// --- Response types (shared across handler files in this package) ---

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	StoreID           uuid.UUID           `json:"store_id"`
	OrderNumber       string              `json:"order_number"`
	Channel           string              `json:"channel"`
	Status            string              `json:"status"`
	TableNumber       *int32              `json:"table_number"`
	CustomerName      string              `json:"customer_name"`
	IsPlaceholderName bool                `json:"is_placeholder_name"`
	CustomerPhone     *string             `json:"customer_phone"`
	Address           *string             `json:"address"`
	TotalPrice        string              `json:"total_price"`
	Discount          string              `json:"discount"`
	CouponCode        *string             `json:"coupon_code"`
	PaymentMethod     *string             `json:"payment_method"`
	CancelReason      *string             `json:"cancel_reason"`
	CourierID         *string             `json:"courier_id"`
	CreatedAt         time.Time           `json:"created_at"`
	LastStatusChange  time.Time           `json:"last_status_change"`
	Items             []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID                 uuid.UUID       `json:"id"`
	OrderID            uuid.UUID       `json:"order_id"`
	ProductName        string          `json:"product_name"`
	Quantity           int32           `json:"quantity"`
	UnitPrice          string          `json:"unit_price"`
	TotalPrice         string          `json:"total_price"`
	RemovedIngredients json.RawMessage `json:"removed_ingredients"`
	SelectedAddons     json.RawMessage `json:"selected_addons"`
	Status             string          `json:"status"`
	SendToKitchen      bool            `json:"send_to_kitchen"`
	CreatedAt          time.Time       `json:"created_at"`
}

// --- Handlers ---

// Get handles GET /stores/{sid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.OrderDetail(r.Context(), storeID, orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, orderWithItemsToResponse(*detail))
}

// Revert handles POST /stores/{sid}/orders/{id}/revert, the documented
// escape hatch moving a mis-tapped entregue order back to enviado.
func (h *OrderHandler) Revert(w http.ResponseWriter, r *http.Request) {
	storeID, orderID, ok := parseStoreAndOrderIDs(w, r)
	if !ok {
		return
	}

	order, err := h.svc.RevertDelivered(r.Context(), storeID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrNotRevertible):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: revert order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.hub.OrderStatusChanged(storeID, order.ID, order.Status)
	writeJSON(w, http.StatusOK, dbOrderToResponse(*order))
}

// --- Helpers ---

// parseStoreAndOrderIDs pulls {sid} and {id} off the route, writing the
// 400 response itself when either is malformed.
func parseStoreAndOrderIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return storeID, orderID, true
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:                o.ID,
		StoreID:           o.StoreID,
		OrderNumber:       o.OrderNumber,
		Channel:           o.Channel,
		Status:            o.Status,
		CustomerName:      o.CustomerName,
		IsPlaceholderName: o.IsPlaceholderName,
		TotalPrice:        numericToString(o.TotalPrice),
		Discount:          numericToString(o.Discount),
		CreatedAt:         o.CreatedAt,
		LastStatusChange:  o.LastStatusChange,
	}

	if o.TableNumber.Valid {
		resp.TableNumber = &o.TableNumber.Int32
	}
	if o.CustomerPhone.Valid {
		resp.CustomerPhone = &o.CustomerPhone.String
	}
	if o.Address.Valid {
		resp.Address = &o.Address.String
	}
	if o.CouponCode.Valid {
		resp.CouponCode = &o.CouponCode.String
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.CancelReason.Valid {
		resp.CancelReason = &o.CancelReason.String
	}
	if o.CourierID.Valid {
		s := uuid.UUID(o.CourierID.Bytes).String()
		resp.CourierID = &s
	}

	return resp
}

func dbOrderItemToResponse(item database.OrderItem) orderItemResponse {
	removed := json.RawMessage(item.RemovedIngredients)
	if len(removed) == 0 {
		removed = json.RawMessage(`[]`)
	}
	addons := json.RawMessage(item.SelectedAddons)
	if len(addons) == 0 {
		addons = json.RawMessage(`[]`)
	}
	return orderItemResponse{
		ID:                 item.ID,
		OrderID:            item.OrderID,
		ProductName:        item.ProductName,
		Quantity:           item.Quantity,
		UnitPrice:          numericToString(item.UnitPrice),
		TotalPrice:         numericToString(item.TotalPrice),
		RemovedIngredients: removed,
		SelectedAddons:     addons,
		Status:             item.Status,
		SendToKitchen:      item.SendToKitchen,
		CreatedAt:          item.CreatedAt,
	}
}

func orderWithItemsToResponse(ow service.OrderWithItems) orderResponse {
	resp := dbOrderToResponse(ow.Order)
	resp.Items = make([]orderItemResponse, len(ow.Items))
	for i, item := range ow.Items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
