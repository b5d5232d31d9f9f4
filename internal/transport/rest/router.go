package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/dineflow/restaurant-ordering/internal/auth"
	"github.com/dineflow/restaurant-ordering/internal/checkout"
	"github.com/dineflow/restaurant-ordering/internal/order"
	"github.com/dineflow/restaurant-ordering/internal/transport/middleware"
	"github.com/dineflow/restaurant-ordering/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, checkoutHandler *checkout.Handler, webhookHandler *checkout.WebhookHandler, orderHandler *order.Handler, verifier *auth.TokenVerifier, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway server-to-server callbacks
		if webhookHandler != nil {
			r.Post("/payment/callback", webhookHandler.HandlePaymentCallback)
		}

		// Customer checkout routes, anonymous by design of the ordering flow
		if checkoutHandler != nil {
			r.Route("/checkout", func(cr chi.Router) {
				cr.Post("/", checkoutHandler.StartCheckout)
				cr.Get("/{sessionID}", checkoutHandler.GetStatus)
				cr.Post("/{sessionID}/return", checkoutHandler.HandleReturn)
				cr.Post("/{sessionID}/resume", checkoutHandler.Resume)
				cr.Post("/{sessionID}/retry", checkoutHandler.RetryPayment)
				cr.Post("/{sessionID}/payment-method", checkoutHandler.SwitchPaymentMethod)
			})
		}

		// Staff order routes behind token auth
		if orderHandler != nil && verifier != nil {
			r.Group(func(sr chi.Router) {
				sr.Use(middleware.StaffAuth(verifier))

				sr.Route("/orders", func(or chi.Router) {
					or.Get("/", orderHandler.ListOrders)
					or.Get("/{id}", orderHandler.GetOrder)

					or.Group(func(kr chi.Router) {
						kr.Use(middleware.RequireRole("kitchen", "manager", "admin"))
						kr.Patch("/{id}/status", orderHandler.UpdateStatus)
					})
				})
			})
		}
	})
}
