package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/subtrack/internal/subservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *subservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *subservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Ping handles GET /api/ping.
func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "pong"})
}

// Reset handles POST /api/demo/reset.
//
//	@Summary		Delete all transactions, subscriptions and invoices
//	@Tags			demo
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/demo/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		writeError(w, "reset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reset": true})
}

// Seed handles POST /api/demo/seed.
//
//	@Summary		Insert demo transactions dated relative to today
//	@Tags			demo
//	@Produce		json
//	@Success		200	{object}	SeedResponse
//	@Security		BearerAuth
//	@Router			/demo/seed [post]
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Seed(r.Context())
	if err != nil {
		writeError(w, "seed", err)
		return
	}
	writeJSON(w, http.StatusOK, SeedResponse{OK: true, Inserted: n})
}

// Detect handles POST /api/detect.
//
//	@Summary		Run subscription detection over the full history
//	@Tags			detection
//	@Produce		json
//	@Success		200	{object}	DetectResponse
//	@Security		BearerAuth
//	@Router			/detect [post]
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Detect(r.Context())
	if err != nil {
		writeError(w, "detect", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListSubscriptions handles GET /api/subscriptions.
//
//	@Summary		List subscriptions ordered by vendor key
//	@Tags			subscriptions
//	@Produce		json
//	@Success		200	{object}	SubscriptionListResponse
//	@Security		BearerAuth
//	@Router			/subscriptions [get]
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListSubscriptions(r.Context())
	if err != nil {
		writeError(w, "list subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, SubscriptionListResponse{Subscriptions: subs})
}

// GetSubscription handles GET /api/subscriptions/{id}.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// PatchSubscription handles PATCH /api/subscriptions/{id}.
//
//	@Summary		Override subscription fields or clear a previous override
//	@Tags			subscriptions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Subscription id"
//	@Param			body	body		PatchSubscriptionRequest	true	"Fields to change"
//	@Success		200		{object}	models.Subscription
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/subscriptions/{id} [patch]
func (h *Handler) PatchSubscription(w http.ResponseWriter, r *http.Request) {
	var req PatchSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if req.ClearOverride {
		sub, err := h.svc.ClearOverride(r.Context(), id)
		if err != nil {
			writeError(w, "clear override", err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
		return
	}
	sub, err := h.svc.Override(r.Context(), id, req.toPatch())
	if err != nil {
		writeError(w, "override", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ListVendors handles GET /api/vendors.
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.svc.ListVendors(r.Context())
	if err != nil {
		writeError(w, "list vendors", err)
		return
	}
	writeJSON(w, http.StatusOK, VendorListResponse{Vendors: vendors})
}

// ListTransactions handles GET /api/transactions.
//
//	@Summary		List recent transactions
//	@Tags			transactions
//	@Produce		json
//	@Param			vendor	query		string	false	"Vendor name or key"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	TransactionListResponse
//	@Security		BearerAuth
//	@Router			/transactions [get]
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	txns, err := h.svc.ListTransactions(r.Context(), q.Get("vendor"), limit)
	if err != nil {
		writeError(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionListResponse{Transactions: txns})
}

// AddTransaction handles POST /api/transactions.
//
//	@Summary		Add a manual transaction
//	@Tags			transactions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddTransactionRequest	true	"Transaction"
//	@Success		201		{object}	models.Transaction
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/transactions [post]
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req AddTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := h.svc.AddTransaction(r.Context(), req.toInput())
	if err != nil {
		writeError(w, "add transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across vendor names
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchTransactions(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// SyncAggregator handles POST /api/aggregator/sync.
func (h *Handler) SyncAggregator(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.SyncAggregator(r.Context())
	if err != nil {
		writeError(w, "aggregator sync", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
