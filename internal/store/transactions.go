package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// TransactionRow is a transaction plus its precomputed vendor key.
type TransactionRow struct {
	models.Transaction
	VendorKey string
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	VendorKey string
	Limit     int
}

// SearchResult is one vendor-name search hit.
type SearchResult struct {
	Transaction models.Transaction `json:"transaction"`
	VendorKey   string             `json:"vendor_key"`
	Snippet     string             `json:"snippet"`
}

const transactionColumns = `id, raw_vendor_name, amount, currency, date, source, external_id`

type scanner interface {
	Scan(dest ...any) error
}

// InsertTransactions stores rows in one transaction and returns how many were
// new. Rows whose id or non-empty external id is already stored are skipped.
func (db *DB) InsertTransactions(rows []TransactionRow) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO transactions
			(id, raw_vendor_name, vendor_key, amount, currency, date, source, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rows {
		res, err := stmt.Exec(r.ID, r.RawVendorName, r.VendorKey, r.Amount.String(), r.Currency,
			r.Date.Format(models.DateLayout), r.Source, r.ExternalID)
		if err != nil {
			return 0, fmt.Errorf("store: insert transaction %s: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue
		}
		if err := ftsUpsert(tx, r.ID, r.RawVendorName, r.VendorKey); err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return inserted, nil
}

// ListTransactions returns the newest transactions first, optionally
// restricted to one vendor key.
func (db *DB) ListTransactions(f TransactionFilter) ([]models.Transaction, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q := `SELECT ` + transactionColumns + ` FROM transactions`
	args := []any{}
	if f.VendorKey != "" {
		q += ` WHERE vendor_key = ?`
		args = append(args, f.VendorKey)
	}
	q += ` ORDER BY date DESC, id LIMIT ?`
	args = append(args, f.Limit)

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// AllTransactions returns every stored transaction, oldest first.
func (db *DB) AllTransactions() ([]models.Transaction, error) {
	rows, err := db.conn.Query(`SELECT ` + transactionColumns + ` FROM transactions ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("store: all transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(s scanner, extra ...any) (models.Transaction, error) {
	var (
		t      models.Transaction
		amount string
		date   string
	)
	dest := append([]any{&t.ID, &t.RawVendorName, &amount, &t.Currency, &date, &t.Source, &t.ExternalID}, extra...)
	if err := s.Scan(dest...); err != nil {
		return t, fmt.Errorf("store: scan transaction: %w", err)
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("store: transaction %s amount: %w", t.ID, err)
	}
	if t.Date, err = models.ParseDate(date); err != nil {
		return t, fmt.Errorf("store: transaction %s date: %w", t.ID, err)
	}
	return t, nil
}
