package router

import (
	"log"
	"net/http"

	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/handler"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, store scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",        // storefront dev server
			"https://app.comanda.rest",     // production terminals
			"https://stg-app.comanda.rest", // staging terminals
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/stores/{sid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services. Store factories let transaction-bound code create Queries
	// instances on the tx.
	orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	})
	tableService := service.NewTableService(pool, queries, func(db database.DBTX) service.TableStore {
		return database.New(db)
	})
	cashierService := service.NewCashierService(pool, queries, func(db database.DBTX) service.CashierStore {
		return database.New(db)
	})
	kitchenService := service.NewKitchenService(queries)
	courierService := service.NewCourierService(queries)

	// Public storefront routes (no auth: a customer at the table scans a
	// QR code and orders straight away). Registered inline so the pattern
	// can coexist with the authenticated /stores/{sid} subtree below.
	checkoutHandler := handler.NewCheckoutHandler(orderService, hub)
	r.Post("/stores/{sid}/checkout", checkoutHandler.Checkout)
	couponHandler := handler.NewCouponHandler(queries)
	r.Post("/stores/{sid}/coupons/validate", couponHandler.Validate)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/stores/{sid}", func(r chi.Router) {
			r.Use(mw.RequireStore)

			// Kitchen terminal
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleKitchen, enum.UserRoleManager, enum.UserRoleOwner))
				kitchenHandler := handler.NewKitchenHandler(kitchenService, hub)
				r.Route("/kitchen", kitchenHandler.RegisterRoutes)
			})

			// Waiter terminal (cashiers close tables too)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleWaiter, enum.UserRoleCashier, enum.UserRoleManager, enum.UserRoleOwner))
				tableHandler := handler.NewTableHandler(tableService, orderService, hub)
				tableHandler.RegisterRoutes(r)
			})

			// Cashier terminal
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleCashier, enum.UserRoleManager, enum.UserRoleOwner))
				cashierHandler := handler.NewCashierHandler(cashierService, hub)
				cashierHandler.RegisterRoutes(r)
			})

			// Courier terminal
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleCourier, enum.UserRoleManager, enum.UserRoleOwner))
				courierHandler := handler.NewCourierHandler(courierService, hub)
				r.Route("/deliveries", courierHandler.RegisterRoutes)
			})

			// Order drill-down and the operator revert escape hatch.
			// Registered inline: the waiter and cashier handlers already
			// claim parts of the /orders subtree.
			orderHandler := handler.NewOrderHandler(cashierService, hub)
			r.Get("/orders/{id}", orderHandler.Get)
			r.With(mw.RequireRole(enum.UserRoleManager, enum.UserRoleOwner)).
				Post("/orders/{id}/revert", orderHandler.Revert)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
