// Package models defines the domain types for subtrack.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction sources.
const (
	SourceSeed       = "seed"
	SourceManual     = "manual"
	SourceInbox      = "inbox"
	SourceAggregator = "aggregator"
)

// DateLayout is the calendar-date format used at every boundary.
const DateLayout = "2006-01-02"

// Transaction is a single charge as received from an ingestion source.
// Transactions are never mutated once stored.
type Transaction struct {
	ID            string          `json:"id"`
	RawVendorName string          `json:"raw_vendor_name"`
	Amount        decimal.Decimal `json:"amount"` // positive for charges
	Currency      string          `json:"currency,omitempty"`
	Date          time.Time       `json:"date"`
	Source        string          `json:"source,omitempty"`
	ExternalID    string          `json:"external_id,omitempty"` // dedupe key for imported rows
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
