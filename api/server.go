/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/invoices/*       Invoice and charge-chain management
  /api/payments/*       Payments and check stubs
  /api/apr/*            Finance-charge generation
  /api/companies/*      Per-company charge settings
  /api/sales/*          Sales-order guards
  /api/seed, /api/reset Demo dataset load / wipe (dev only)
  /metrics              Prometheus metrics

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/post", h.PostInvoiceAction)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Get("/{id}/check", h.GetCheckStub)
		})

		// Finance charge routes
		r.Route("/apr", func(r chi.Router) {
			r.Post("/generate", h.GenerateCharges)
			r.Get("/due", h.ListDueInvoices)
		})

		// Company configuration routes
		r.Route("/companies", func(r chi.Router) {
			r.Get("/{id}/config", h.GetCompanyConfig)
			r.Put("/{id}/config", h.PutCompanyConfig)
		})

		// Sales routes
		r.Route("/sales", func(r chi.Router) {
			r.Post("/margin-check", h.MarginCheck)
		})

		// Demo data (dev only)
		r.Post("/seed", h.Seed)
		r.Post("/reset", h.ResetData)
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}
