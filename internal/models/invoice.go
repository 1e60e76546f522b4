package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is a parsed vendor invoice uploaded by the user.
type Invoice struct {
	ID            string           `json:"id"`
	VendorName    string           `json:"vendor_name"`
	VendorKey     string           `json:"vendor_key,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
	InvoiceDate   string           `json:"invoice_date,omitempty"`
	BillingPeriod string           `json:"billing_period,omitempty"`
	Filename      string           `json:"filename,omitempty"`
	Raw           map[string]any   `json:"raw,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Vendor is a summary of one normalized vendor seen in the transaction set.
type Vendor struct {
	Key              string `json:"key"`
	DisplayName      string `json:"display_name"`
	TransactionCount int    `json:"transaction_count"`
	Subscribed       bool   `json:"subscribed"`
}
