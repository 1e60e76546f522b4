// Package statement parses bank statement CSV exports into transactions.
//
// The header row names the columns; order does not matter. Required columns
// are date, description and amount. Currency and type are optional; a type
// of "credit" marks the row as money in, stored as a negative amount. Lines
// starting with '#' are comments.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// ErrNoHeader is returned when the input has no usable header row.
var ErrNoHeader = errors.New("statement: missing date, description or amount column")

// RowError describes a rejected data row.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Result is the outcome of parsing one file.
type Result struct {
	Transactions []models.Transaction
	Rejected     []RowError
}

var columnAliases = map[string]string{
	"date":             "date",
	"transaction date": "date",
	"posted date":      "date",
	"description":      "description",
	"merchant":         "description",
	"vendor":           "description",
	"name":             "description",
	"payee":            "description",
	"amount":           "amount",
	"currency":         "currency",
	"type":             "type",
}

var dateLayouts = []string{models.DateLayout, "01/02/2006", "02 Jan 2006", "Jan 2, 2006"}

// Parse reads a statement. Every accepted row gets ExternalID
// "<prefix>:<line>" so a re-import of the same file deduplicates.
func Parse(r io.Reader, prefix string) (*Result, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("statement: read header: %w", err)
	}
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := columnAliases[name]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, ErrNoHeader
		}
	}

	res := &Result{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("statement: line %d: %w", line, err)
		}
		t, err := parseRow(rec, cols)
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Line: line, Err: err.Error()})
			continue
		}
		t.ExternalID = fmt.Sprintf("%s:%d", prefix, line)
		res.Transactions = append(res.Transactions, t)
	}
	return res, nil
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseRow(rec []string, cols map[string]int) (models.Transaction, error) {
	desc := field(rec, cols, "description")
	if desc == "" {
		return models.Transaction{}, errors.New("empty description")
	}
	date, err := parseDate(field(rec, cols, "date"))
	if err != nil {
		return models.Transaction{}, err
	}
	amount, err := parseAmount(field(rec, cols, "amount"))
	if err != nil {
		return models.Transaction{}, err
	}
	if amount.IsZero() {
		return models.Transaction{}, errors.New("zero amount")
	}
	if strings.EqualFold(field(rec, cols, "type"), "credit") {
		amount = amount.Abs().Neg()
	}
	return models.Transaction{
		RawVendorName: desc,
		Amount:        amount,
		Currency:      strings.ToUpper(field(rec, cols, "currency")),
		Date:          date,
		Source:        models.SourceInbox,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	neg := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean, neg = clean[1:len(clean)-1], true
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognised amount %q", s)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}
