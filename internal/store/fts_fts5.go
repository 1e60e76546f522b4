//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS transactions_fts USING fts5(
			id UNINDEXED,
			raw_vendor_name,
			vendor_key,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, rawVendor, vendorKey string) error {
	_, _ = tx.Exec(`DELETE FROM transactions_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO transactions_fts (id, raw_vendor_name, vendor_key) VALUES (?, ?, ?)`,
		id, rawVendor, vendorKey)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM transactions_fts`); err != nil {
		return fmt.Errorf("store: reset fts: %w", err)
	}
	return nil
}

// ftsQuery turns free text into a prefix query of quoted terms so user input
// never reaches the FTS5 query syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// SearchTransactions runs an FTS5 search over vendor names.
func (db *DB) SearchTransactions(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT t.id, t.raw_vendor_name, t.amount, t.currency, t.date, t.source, t.external_id,
		       t.vendor_key,
		       snippet(transactions_fts, 1, '<b>', '</b>', '...', 16)
		FROM transactions_fts
		JOIN transactions t ON t.id = transactions_fts.id
		WHERE transactions_fts MATCH ?
		ORDER BY rank, t.date DESC
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collectSearch(rows)
}
