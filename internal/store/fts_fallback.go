//go:build !sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the transactions table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error { return nil }

func ftsReset(_ *sql.Tx) error { return nil }

// SearchTransactions performs a LIKE-based search over vendor names.
func (db *DB) SearchTransactions(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, raw_vendor_name, amount, currency, date, source, external_id,
		       vendor_key, raw_vendor_name
		FROM transactions
		WHERE raw_vendor_name LIKE ? OR vendor_key LIKE ?
		ORDER BY date DESC, id
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collectSearch(rows)
}
