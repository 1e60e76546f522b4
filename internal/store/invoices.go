package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// Import records one ingested statement file.
type Import struct {
	Checksum   string
	Filename   string
	Source     string
	Rows       int
	ImportedAt time.Time
}

// InsertInvoice stores a parsed invoice.
func (db *DB) InsertInvoice(inv models.Invoice) error {
	raw, err := json.Marshal(inv.Raw)
	if err != nil {
		return fmt.Errorf("store: encode invoice raw: %w", err)
	}
	var total any
	if inv.Total != nil {
		total = inv.Total.String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err = db.conn.Exec(`
		INSERT INTO invoices (id, vendor_name, vendor_key, total, invoice_date, billing_period, filename, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.VendorName, inv.VendorKey, total, inv.InvoiceDate, inv.BillingPeriod, inv.Filename, string(raw), inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert invoice: %w", err)
	}
	return nil
}

// ListInvoices returns the most recent invoices first.
func (db *DB) ListInvoices(limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, vendor_name, vendor_key, total, invoice_date, billing_period, filename, raw, created_at
		FROM invoices
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list invoices: %w", err)
	}
	defer rows.Close()

	var out []models.Invoice
	for rows.Next() {
		var (
			inv   models.Invoice
			total sql.NullString
			raw   string
		)
		if err := rows.Scan(&inv.ID, &inv.VendorName, &inv.VendorKey, &total, &inv.InvoiceDate,
			&inv.BillingPeriod, &inv.Filename, &raw, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan invoice: %w", err)
		}
		if total.Valid {
			d, err := decimal.NewFromString(total.String)
			if err != nil {
				return nil, fmt.Errorf("store: invoice %s total: %w", inv.ID, err)
			}
			inv.Total = &d
		}
		if err := json.Unmarshal([]byte(raw), &inv.Raw); err != nil {
			return nil, fmt.Errorf("store: invoice %s raw: %w", inv.ID, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// HasImport reports whether a file with this checksum was already imported.
func (db *DB) HasImport(checksum string) (bool, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM imports WHERE checksum = ?`, checksum).Scan(&n); err != nil {
		return false, fmt.Errorf("store: has import: %w", err)
	}
	return n > 0, nil
}

// RecordImport marks a file as imported. Recording the same checksum twice
// is a no-op.
func (db *DB) RecordImport(imp Import) error {
	if imp.ImportedAt.IsZero() {
		imp.ImportedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO imports (checksum, filename, source, row_count, imported_at)
		VALUES (?, ?, ?, ?, ?)
	`, imp.Checksum, imp.Filename, imp.Source, imp.Rows, imp.ImportedAt)
	if err != nil {
		return fmt.Errorf("store: record import: %w", err)
	}
	return nil
}
