// Package store persists transactions, subscriptions, invoices and import
// records in SQLite, with optional FTS5 search over vendor names.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS transactions (
	id              TEXT PRIMARY KEY,
	raw_vendor_name TEXT NOT NULL,
	vendor_key      TEXT NOT NULL DEFAULT '',
	amount          TEXT NOT NULL,
	currency        TEXT NOT NULL DEFAULT '',
	date            TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT '',
	external_id     TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_vendor ON transactions(vendor_key);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external
	ON transactions(external_id) WHERE external_id != '';

CREATE TABLE IF NOT EXISTS subscriptions (
	id                  TEXT PRIMARY KEY,
	vendor_key          TEXT NOT NULL UNIQUE,
	vendor_display_name TEXT NOT NULL DEFAULT '',
	interval            TEXT NOT NULL,
	baseline_amount     TEXT NOT NULL DEFAULT '0',
	status              TEXT NOT NULL,
	next_expected       TEXT,
	confidence          REAL NOT NULL DEFAULT 0,
	first_seen          TEXT NOT NULL DEFAULT '',
	last_seen           TEXT NOT NULL DEFAULT '',
	occurrences         INTEGER NOT NULL DEFAULT 0,
	lifecycle_owner     TEXT NOT NULL DEFAULT '',
	observation_owner   TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	vendor_name    TEXT NOT NULL DEFAULT '',
	vendor_key     TEXT NOT NULL DEFAULT '',
	total          TEXT,
	invoice_date   TEXT NOT NULL DEFAULT '',
	billing_period TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL DEFAULT '',
	raw            TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor_key);

CREATE TABLE IF NOT EXISTS imports (
	checksum    TEXT PRIMARY KEY,
	filename    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	row_count   INTEGER NOT NULL DEFAULT 0,
	imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Reset deletes every row from every table.
func (db *DB) Reset() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, table := range []string{"transactions", "subscriptions", "invoices", "imports"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("store: reset %s: %w", table, err)
		}
	}
	if err := ftsReset(tx); err != nil {
		return err
	}
	return tx.Commit()
}
