package subservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/store"
)

// NewTransaction is a manually entered charge.
type NewTransaction struct {
	RawVendorName string
	Amount        decimal.Decimal
	Currency      string
	Date          time.Time
}

// Validate checks the required fields.
func (n NewTransaction) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.RawVendorName, validation.Required, validation.Length(1, 200)),
		validation.Field(&n.Amount, validation.By(func(any) error {
			if n.Amount.IsZero() {
				return errors.New("cannot be zero")
			}
			return nil
		})),
		validation.Field(&n.Currency, validation.Length(3, 3)),
		validation.Field(&n.Date, validation.Required),
	)
}

// AddTransaction stores a manual transaction.
func (s *Service) AddTransaction(_ context.Context, in NewTransaction) (*models.Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	t := models.Transaction{
		ID:            uuid.NewString(),
		RawVendorName: strings.TrimSpace(in.RawVendorName),
		Amount:        in.Amount,
		Currency:      strings.ToUpper(in.Currency),
		Date:          models.Day(in.Date),
		Source:        models.SourceManual,
	}
	if _, err := s.insert(models.SourceManual, []models.Transaction{t}); err != nil {
		return nil, err
	}
	return &t, nil
}

// insert assigns ids and vendor keys and stores txns, returning how many
// were new.
func (s *Service) insert(source string, txns []models.Transaction) (int, error) {
	rows := make([]store.TransactionRow, 0, len(txns))
	for _, t := range txns {
		// Rows detection would reject as malformed never reach the store.
		if t.Amount.IsZero() || t.Date.IsZero() {
			s.logger.Warn("transaction dropped",
				slog.String("source", source),
				slog.String("external_id", t.ExternalID),
				slog.String("vendor", t.RawVendorName))
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Source == "" {
			t.Source = source
		}
		// Unusable names are stored with an empty key; the grouper skips them.
		key, _ := s.engine.Normalizer().Normalize(t.RawVendorName)
		rows = append(rows, store.TransactionRow{Transaction: t, VendorKey: key})
	}
	n, err := s.repo.InsertTransactions(rows)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordImported(source, n)
	}
	return n, nil
}

// ListTransactions returns recent transactions, optionally for one vendor.
// vendor may be a raw name or a vendor key.
func (s *Service) ListTransactions(_ context.Context, vendor string, limit int) ([]models.Transaction, error) {
	f := store.TransactionFilter{Limit: limit}
	if strings.TrimSpace(vendor) != "" {
		key, err := s.engine.Normalizer().Normalize(vendor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		f.VendorKey = key
	}
	txns, err := s.repo.ListTransactions(f)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(txns), nil
}

// SearchTransactions runs a full-text search over vendor names.
func (s *Service) SearchTransactions(_ context.Context, q string, limit int) ([]store.SearchResult, error) {
	res, err := s.repo.SearchTransactions(q, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// ListVendors summarizes every vendor in the transaction history.
func (s *Service) ListVendors(_ context.Context) ([]models.Vendor, error) {
	txns, err := s.repo.AllTransactions()
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Classify(txns)
	if err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubscriptions()
	if err != nil {
		return nil, err
	}
	subscribed := make(map[string]bool, len(subs))
	for _, sub := range subs {
		subscribed[sub.VendorKey] = true
	}
	g, err := s.engine.Group(txns)
	if err != nil {
		return nil, err
	}

	out := make([]models.Vendor, 0, len(res.Classifications))
	for _, c := range res.Classifications {
		out = append(out, models.Vendor{
			Key:              c.VendorKey,
			DisplayName:      c.DisplayName,
			TransactionCount: len(g.Groups[c.VendorKey]),
			Subscribed:       subscribed[c.VendorKey],
		})
	}
	return out, nil
}

// Classify runs the classifier without persisting anything.
func (s *Service) Classify(_ context.Context) (*detection.Result, error) {
	txns, err := s.repo.AllTransactions()
	if err != nil {
		return nil, err
	}
	return s.engine.Classify(txns)
}
