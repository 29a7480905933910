package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CheckoutServicer defines the service methods needed by the storefront
// checkout. Satisfied by *service.OrderService.
type CheckoutServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// CheckoutHandler is the public (unauthenticated) storefront entry point
// into the order lifecycle.
type CheckoutHandler struct {
	svc CheckoutServicer
	hub Notifier
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(svc CheckoutServicer, hub Notifier) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers the checkout endpoint on the given Chi router.
// Expected to be mounted at /stores/{sid}.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout", h.Checkout)
}

// --- Request types ---

type checkoutRequest struct {
	Channel       string            `json:"channel"`
	TableNumber   int32             `json:"table_number"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	Address       string            `json:"address"`
	CouponCode    string            `json:"coupon_code"`
	Items         []cartItemRequest `json:"items"`
}

type cartItemRequest struct {
	ProductName        string             `json:"product_name"`
	Quantity           int32              `json:"quantity"`
	UnitPrice          string             `json:"unit_price"`
	RemovedIngredients []string           `json:"removed_ingredients"`
	SelectedAddons     []cartAddonRequest `json:"selected_addons"`
	SendToKitchen      *bool              `json:"send_to_kitchen"`
}

type cartAddonRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// --- Handlers ---

// Checkout handles POST /stores/{sid}/checkout.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel is required"})
		return
	}
	if req.Channel == enum.ChannelEntrega && req.CustomerPhone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "customer_phone is required for delivery orders"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i, item := range req.Items {
		if item.ProductName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "product_name is required"),
			})
			return
		}
		if item.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "quantity must be > 0"),
			})
			return
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		StoreID:       storeID,
		Channel:       req.Channel,
		TableNumber:   req.TableNumber,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		CouponCode:    req.CouponCode,
		Items:         toServiceItems(req.Items),
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
		log.Printf("ERROR: checkout: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.hub.OrderStatusChanged(storeID, result.Order.ID, result.Order.Status)
	writeJSON(w, http.StatusCreated, orderWithItemsToResponse(service.OrderWithItems{
		Order: result.Order,
		Items: result.Items,
	}))
}

// --- Helpers ---

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// toServiceItems converts cart lines to service items. send_to_kitchen
// defaults to true when omitted: storefront carts are food-first, bar
// items opt out explicitly.
func toServiceItems(items []cartItemRequest) []service.CreateOrderItemRequest {
	svcItems := make([]service.CreateOrderItemRequest, len(items))
	for i, item := range items {
		addons := make([]service.AddonRequest, len(item.SelectedAddons))
		for j, a := range item.SelectedAddons {
			addons[j] = service.AddonRequest{Name: a.Name, Price: a.Price}
		}
		sendToKitchen := true
		if item.SendToKitchen != nil {
			sendToKitchen = *item.SendToKitchen
		}
		svcItems[i] = service.CreateOrderItemRequest{
			ProductName:        item.ProductName,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			RemovedIngredients: item.RemovedIngredients,
			SelectedAddons:     addons,
			SendToKitchen:      sendToKitchen,
		}
	}
	return svcItems
}
