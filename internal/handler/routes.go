package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/config"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/metrics"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// Deps are the collaborators the router is built from. CheckoutLimiter,
// Ping and Metrics are optional.
type Deps struct {
	Inventory       InventoryService
	Transactions    TransactionService
	Auth            *Authenticator
	CheckoutLimiter Limiter
	Ping            func(ctx context.Context) error
	Metrics         http.Handler
	CORS            config.CORSConfig
}

// NewRouter builds the full HTTP surface.
func NewRouter(d Deps) http.Handler {
	inventory := NewInventoryHandler(d.Inventory)
	transactions := NewTransactionHandler(d.Transactions)
	organizer := RequireRole(model.RoleOrganizer, model.RoleAdmin)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)                  // structured access log
	r.Use(metrics.Middleware)
	r.Use(CORS(d.CORS))

	r.Get("/health", HealthCheck(d.Ping))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/events", func(r chi.Router) {
		r.Get("/{id}/ticket-types", inventory.ListTicketTypes)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Authenticate, organizer)
			r.Post("/", inventory.CreateEvent)
			r.Post("/{id}/ticket-types", inventory.AddTicketTypes)
		})
	})

	r.Route("/ticket-types", func(r chi.Router) {
		r.Use(d.Auth.Authenticate, organizer)
		r.Patch("/{id}", inventory.UpdateTicketType)
		r.Delete("/{id}", inventory.DeleteTicketType)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Use(d.Auth.Authenticate)

		r.Group(func(r chi.Router) {
			if d.CheckoutLimiter != nil {
				r.Use(RateLimit(d.CheckoutLimiter))
			}
			r.Post("/checkout", transactions.Checkout)
		})
		r.Get("/me", transactions.ListMine)
		r.Patch("/{id}/cancel", transactions.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(organizer)
			r.Get("/organizer", transactions.ListOrganizer)
			r.Get("/{id}", transactions.Get)
			r.Patch("/{id}/accept", transactions.Accept)
			r.Patch("/{id}/reject", transactions.Reject)
		})
	})

	return r
}
