package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/subtrack/internal/subservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// maxUploadBytes bounds invoice uploads.
func NewRouter(svc *subservice.Service, authEnabled bool, token string, sseHandler http.Handler, maxUploadBytes int64) chi.Router {
	h := NewHandler(svc)
	ih := NewInvoiceHandler(svc, maxUploadBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/ping", h.Ping)

	// Demo data.
	r.Post("/demo/reset", h.Reset)
	r.Post("/demo/seed", h.Seed)

	// Detection and subscriptions.
	r.Post("/detect", h.Detect)
	r.Get("/subscriptions", h.ListSubscriptions)
	r.Get("/subscriptions/{id}", h.GetSubscription)
	r.Patch("/subscriptions/{id}", h.PatchSubscription)
	r.Get("/vendors", h.ListVendors)

	// Transactions.
	r.Get("/transactions", h.ListTransactions)
	r.Post("/transactions", h.AddTransaction)
	r.Get("/search", h.Search)
	r.Post("/aggregator/sync", h.SyncAggregator)

	// Invoices.
	r.Post("/invoices", ih.Upload)
	r.Get("/invoices", ih.List)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
