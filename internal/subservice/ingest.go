package subservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/subtrack/internal/aggregator"
	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/checksum"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/statement"
	"github.com/starford/subtrack/internal/store"
)

// ImportReport summarizes one statement import.
type ImportReport struct {
	Filename  string               `json:"filename"`
	Checksum  string               `json:"checksum"`
	Duplicate bool                 `json:"duplicate"`
	Parsed    int                  `json:"parsed"`
	Inserted  int                  `json:"inserted"`
	Rejected  []statement.RowError `json:"rejected"`
}

// ImportStatement parses a statement CSV and stores its rows. A file whose
// checksum was imported before is reported as a duplicate and not parsed.
func (s *Service) ImportStatement(ctx context.Context, filename string, data []byte) (*ImportReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := checksum.Sum(data)
	rep := &ImportReport{Filename: filepath.Base(filename), Checksum: sum, Rejected: []statement.RowError{}}

	seen, err := s.repo.HasImport(sum)
	if err != nil {
		return nil, err
	}
	if seen {
		rep.Duplicate = true
		return rep, nil
	}

	res, err := statement.Parse(bytes.NewReader(data), models.SourceInbox+":"+sum[:12])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrInvalidInput, rep.Filename, err)
	}
	rep.Parsed = len(res.Transactions)
	rep.Rejected = nonNilSlice(res.Rejected)

	n, err := s.insert(models.SourceInbox, res.Transactions)
	if err != nil {
		return nil, err
	}
	rep.Inserted = n

	if err := s.repo.RecordImport(store.Import{
		Checksum:   sum,
		Filename:   rep.Filename,
		Source:     models.SourceInbox,
		Rows:       n,
		ImportedAt: s.now().UTC(),
	}); err != nil {
		return nil, err
	}
	s.logger.Info("statement: imported",
		slog.String("file", rep.Filename),
		slog.Int("inserted", n),
		slog.Int("rejected", len(rep.Rejected)))
	return rep, nil
}

// SyncReport summarizes one aggregator pull.
type SyncReport struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
}

// SyncAggregator pulls recent transactions from the bank aggregator.
// Already stored rows are skipped by their external id.
func (s *Service) SyncAggregator(ctx context.Context) (*SyncReport, error) {
	if s.aggregator == nil {
		return nil, aggregator.ErrNotConfigured
	}
	txns, err := s.aggregator.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.insert(models.SourceAggregator, txns)
	if err != nil {
		return nil, err
	}
	s.logger.Info("aggregator: synced", slog.Int("fetched", len(txns)), slog.Int("inserted", n))
	return &SyncReport{Fetched: len(txns), Inserted: n}, nil
}

// IngestInvoice extracts an uploaded invoice and stores it under the
// normalized vendor key.
func (s *Service) IngestInvoice(ctx context.Context, filename string, data []byte) (*models.Invoice, error) {
	parsed, err := s.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	inv := models.Invoice{
		ID:            uuid.NewString(),
		VendorName:    strings.TrimSpace(parsed.Vendor),
		Total:         parsed.Total,
		InvoiceDate:   parsed.InvoiceDate,
		BillingPeriod: parsed.BillingPeriod,
		Filename:      filepath.Base(filename),
		Raw:           parsed.Raw,
		CreatedAt:     s.now().UTC(),
	}
	if inv.VendorName != "" {
		key, err := s.engine.Normalizer().Normalize(inv.VendorName)
		if err != nil && !errors.Is(err, detection.ErrInvalidVendorName) {
			return nil, err
		}
		inv.VendorKey = key
	}
	if err := s.repo.InsertInvoice(inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices returns the most recent invoices.
func (s *Service) ListInvoices(_ context.Context, limit int) ([]models.Invoice, error) {
	invs, err := s.repo.ListInvoices(limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(invs), nil
}
