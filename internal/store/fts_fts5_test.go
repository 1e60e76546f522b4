//go:build sqlite_fts5

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM transactions_fts`).Scan(&n))
}

func TestFTS5_DiacriticsAndSnippet(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertTransactions([]TransactionRow{row("c", "Café Nero", "cafe nero", "4.10", "2025-08-01", "")})
	require.NoError(t, err)

	res, err := db.SearchTransactions("cafe", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Snippet, "<b>")
}

func TestFTS5_QuotesAreLiteral(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertTransactions([]TransactionRow{row("a", "Netflix", "netflix", "15.99", "2025-07-08", "")})
	require.NoError(t, err)

	_, err = db.SearchTransactions(`net" OR "x`, 10)
	assert.NoError(t, err)
}
