package api

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/store"
	"github.com/starford/subtrack/internal/subservice"
)

// AddTransactionRequest is the request body for adding a manual transaction.
type AddTransactionRequest struct {
	Vendor   string `json:"vendor" example:"Netflix" validate:"required"`
	Amount   string `json:"amount" example:"15.99" validate:"required"`
	Currency string `json:"currency,omitempty" example:"USD"`
	Date     string `json:"date" example:"2025-09-08" validate:"required"`
}

// Validate checks field formats.
func (r *AddTransactionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Vendor, validation.Required),
		validation.Field(&r.Amount, validation.Required, validation.By(isDecimal)),
		validation.Field(&r.Date, validation.Required, validation.Date(models.DateLayout)),
	)
}

func (r *AddTransactionRequest) toInput() subservice.NewTransaction {
	amount, _ := decimal.NewFromString(r.Amount)
	date, _ := models.ParseDate(r.Date)
	return subservice.NewTransaction{RawVendorName: r.Vendor, Amount: amount, Currency: r.Currency, Date: date}
}

// PatchSubscriptionRequest edits a subscription. ClearOverride hands the
// record back to detection and cannot be combined with field edits.
type PatchSubscriptionRequest struct {
	Status         *string `json:"status,omitempty" example:"cancelled"`
	Interval       *string `json:"interval,omitempty" example:"monthly"`
	NextExpected   *string `json:"next_expected,omitempty" example:"2025-10-08"`
	BaselineAmount *string `json:"baseline_amount,omitempty" example:"15.99"`
	ClearOverride  bool    `json:"clear_override,omitempty"`
}

// Validate checks field formats.
func (r *PatchSubscriptionRequest) Validate() error {
	hasEdit := r.Status != nil || r.Interval != nil || r.NextExpected != nil || r.BaselineAmount != nil
	if r.ClearOverride && hasEdit {
		return errors.New("clear_override cannot be combined with field edits")
	}
	if !r.ClearOverride && !hasEdit {
		return errors.New("nothing to update")
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.NextExpected, validation.NilOrNotEmpty, validation.Date(models.DateLayout)),
		validation.Field(&r.BaselineAmount, validation.NilOrNotEmpty, validation.By(isDecimal)),
	)
}

func (r *PatchSubscriptionRequest) toPatch() subservice.Patch {
	var p subservice.Patch
	if r.Status != nil {
		st := models.Status(*r.Status)
		p.Status = &st
	}
	if r.Interval != nil {
		iv := models.Interval(*r.Interval)
		p.Interval = &iv
	}
	if r.NextExpected != nil {
		if d, err := models.ParseDate(*r.NextExpected); err == nil {
			p.NextExpected = &d
		}
	}
	if r.BaselineAmount != nil {
		if d, err := decimal.NewFromString(*r.BaselineAmount); err == nil {
			p.BaselineAmount = &d
		}
	}
	return p
}

func isDecimal(v any) error {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case *string:
		if x == nil {
			return nil
		}
		s = *x
	}
	if s == "" {
		return nil
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return fmt.Errorf("must be a decimal number")
	}
	return nil
}

// SubscriptionListResponse wraps subscription listings.
type SubscriptionListResponse struct {
	Subscriptions []models.Subscription `json:"subscriptions" validate:"required"`
}

// TransactionListResponse wraps transaction listings.
type TransactionListResponse struct {
	Transactions []models.Transaction `json:"transactions" validate:"required"`
}

// VendorListResponse wraps vendor summaries.
type VendorListResponse struct {
	Vendors []models.Vendor `json:"vendors" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}

// InvoiceListResponse wraps invoice listings.
type InvoiceListResponse struct {
	Invoices []models.Invoice `json:"invoices" validate:"required"`
}

// DetectResponse is returned by POST /detect.
type DetectResponse = subservice.RunReport

// SeedResponse is returned by POST /demo/seed.
type SeedResponse struct {
	OK       bool `json:"ok"`
	Inserted int  `json:"inserted" example:"12"`
}
