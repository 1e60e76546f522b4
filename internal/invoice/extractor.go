// Package invoice pulls vendor, total, date and billing period out of
// uploaded invoice documents.
package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Extractor kinds.
const (
	KindMock = "mock"
	KindPDF  = "pdf"
)

// Billing periods reported by extractors.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
	PeriodUnknown = "unknown"
)

// ErrUnreadable is returned when a document yields no usable text.
var ErrUnreadable = errors.New("invoice: unreadable document")

// Parsed is the structured content of one invoice.
type Parsed struct {
	Vendor        string           `json:"vendor"`
	Total         *decimal.Decimal `json:"total"`
	InvoiceDate   string           `json:"invoice_date,omitempty"`
	BillingPeriod string           `json:"billing_period"`
	Raw           map[string]any   `json:"raw,omitempty"`
}

// Extractor parses an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (*Parsed, error)
}

// New returns the extractor registered under kind.
func New(kind string) (Extractor, error) {
	switch kind {
	case "", KindMock:
		return MockExtractor{}, nil
	case KindPDF:
		return PDFExtractor{}, nil
	}
	return nil, fmt.Errorf("invoice: unknown extractor %q", kind)
}

// MockExtractor returns a fixed demo invoice regardless of input.
type MockExtractor struct{}

// Extract implements Extractor.
func (MockExtractor) Extract(_ context.Context, filename string, _ []byte) (*Parsed, error) {
	total := decimal.RequireFromString("29.99")
	return &Parsed{
		Vendor:        "Adobe Inc.",
		Total:         &total,
		InvoiceDate:   "2025-07-01",
		BillingPeriod: PeriodMonthly,
		Raw:           map[string]any{"mock": true, "filename": filename},
	}, nil
}
