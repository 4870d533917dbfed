/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  Public (optional auth):  login, register, catalog reads
  Member (required auth):  profile, own history, redemption requests
  Admin (required auth):   everything else; role is enforced by the engine,
                           the middleware only establishes identity

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/clubhouse/points-engine/auth"
)

// NewRouter creates a new router with all routes configured. corsOrigins
// empty means allow all origins (development).
func NewRouter(h *Handler, tokens *auth.Manager, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes. The catalog varies by caller, so token parsing is
		// optional rather than absent.
		r.Group(func(r chi.Router) {
			r.Use(tokens.Optional)
			r.Post("/auth/login", h.Login)
			r.Post("/auth/register", h.Register)
			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)
		})

		// Authenticated routes. Role checks happen in the engine; a valid
		// token is all the middleware requires.
		r.Group(func(r chi.Router) {
			r.Use(tokens.Require)

			// Member self-service
			r.Get("/members/me", h.GetProfile)
			r.Get("/members/me/movements", h.GetOwnMovements)
			r.Get("/members/me/redemptions", h.GetOwnRedemptions)
			r.Post("/redemptions", h.RequestRedemption)

			// Catalog management
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)

			// Member administration
			r.Get("/members", h.ListMembers)
			r.Post("/members", h.CreateMember)
			r.Delete("/members/{id}", h.DeleteMember)
			r.Get("/members/{id}/movements", h.GetMemberMovements)
			r.Post("/members/{id}/adjustments", h.AdjustPoints)

			// Physical purchases
			r.Post("/purchases", h.RecordPurchase)

			// Redemption approval queue
			r.Get("/redemptions/pending", h.ListPendingRedemptions)
			r.Post("/redemptions/{id}/approve", h.ApproveRedemption)
			r.Post("/redemptions/{id}/reject", h.RejectRedemption)

			// Membership applications
			r.Get("/preregistrations/pending", h.ListPendingPreRegistrations)
			r.Post("/preregistrations/{id}/approve", h.ApprovePreRegistration)
			r.Post("/preregistrations/{id}/reject", h.RejectPreRegistration)
		})
	})

	return r
}
