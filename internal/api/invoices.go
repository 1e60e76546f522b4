package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/subtrack/internal/subservice"
)

var allowedInvoiceExts = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}

// InvoiceHandler accepts invoice uploads.
type InvoiceHandler struct {
	svc            *subservice.Service
	maxUploadBytes int64
}

// NewInvoiceHandler creates a handler with an upload size bound.
func NewInvoiceHandler(svc *subservice.Service, maxUploadBytes int64) *InvoiceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &InvoiceHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Upload handles POST /api/invoices (multipart/form-data, field "file").
func (h *InvoiceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean(header.Filename))
	if ext := strings.ToLower(filepath.Ext(name)); !allowedInvoiceExts[ext] {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported file type "+ext))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	inv, err := h.svc.IngestInvoice(r.Context(), name, data)
	if err != nil {
		writeError(w, "ingest invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// List handles GET /api/invoices.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	invs, err := h.svc.ListInvoices(r.Context(), limit)
	if err != nil {
		writeError(w, "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceListResponse{Invoices: invs})
}
