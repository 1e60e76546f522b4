package store

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "subtrack-store-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func row(id, vendor, key, amount, date, externalID string) TransactionRow {
	d, _ := models.ParseDate(date)
	return TransactionRow{
		Transaction: models.Transaction{
			ID:            id,
			RawVendorName: vendor,
			Amount:        decimal.RequireFromString(amount),
			Currency:      "USD",
			Date:          d,
			Source:        models.SourceManual,
			ExternalID:    externalID,
		},
		VendorKey: key,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"transactions", "subscriptions", "invoices", "imports"} {
		var n int
		require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM `+table).Scan(&n), table)
	}
}

func TestInsertTransactions_Dedupe(t *testing.T) {
	db := testDB(t)

	n, err := db.InsertTransactions([]TransactionRow{
		row("t1", "Netflix", "netflix", "15.99", "2025-08-08", "aggregator:abc"),
		row("t2", "Netflix", "netflix", "15.99", "2025-09-08", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same external id under a new local id, and a repeated local id.
	n, err = db.InsertTransactions([]TransactionRow{
		row("t3", "Netflix", "netflix", "15.99", "2025-08-08", "aggregator:abc"),
		row("t2", "Netflix", "netflix", "15.99", "2025-09-08", ""),
		row("t4", "Spotify", "spotify", "9.99", "2025-09-01", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := db.AllTransactions()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTransactions_RoundTrip(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertTransactions([]TransactionRow{row("t1", "Adobe Inc.", "adobe", "29.99", "2025-07-01", "")})
	require.NoError(t, err)

	all, err := db.AllTransactions()
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, "Adobe Inc.", got.RawVendorName)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, "2025-07-01", got.Date.Format(models.DateLayout))
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, models.SourceManual, got.Source)
}

func TestListTransactions_FilterAndOrder(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertTransactions([]TransactionRow{
		row("a", "Netflix", "netflix", "15.99", "2025-07-08", ""),
		row("b", "Netflix", "netflix", "15.99", "2025-08-08", ""),
		row("c", "Spotify", "spotify", "9.99", "2025-08-01", ""),
	})
	require.NoError(t, err)

	txns, err := db.ListTransactions(TransactionFilter{VendorKey: "netflix"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "b", txns[0].ID, "newest first")

	txns, err = db.ListTransactions(TransactionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "b", txns[0].ID)
}

func TestSearchTransactions(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertTransactions([]TransactionRow{
		row("a", "Netflix", "netflix", "15.99", "2025-07-08", ""),
		row("b", "Spotify AB", "spotify ab", "9.99", "2025-08-01", ""),
	})
	require.NoError(t, err)

	res, err := db.SearchTransactions("netf", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].Transaction.ID)
	assert.Equal(t, "netflix", res[0].VendorKey)

	res, err = db.SearchTransactions("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func create(key string, interval models.Interval, next *time.Time) detection.Upsert {
	return detection.Upsert{
		Op: detection.OpCreate,
		Subscription: models.Subscription{
			VendorKey:         key,
			VendorDisplayName: key,
			Interval:          interval,
			BaselineAmount:    decimal.RequireFromString("15.99"),
			Status:            models.StatusInferred,
			NextExpected:      next,
			Confidence:        0.6667,
			FirstSeen:         time.Date(2025, 8, 8, 0, 0, 0, 0, time.UTC),
			LastSeen:          time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC),
			Occurrences:       2,
			Ownership:         models.EngineOwned(),
		},
	}
}

func TestApplyUpserts_CreateAndUpdate(t *testing.T) {
	db := testDB(t)
	next := time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)

	saved, err := db.ApplyUpserts([]detection.Upsert{create("netflix", models.IntervalMonthly, &next)})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NotEmpty(t, saved[0].ID)

	got, err := db.GetSubscriptionByVendor("netflix")
	require.NoError(t, err)
	assert.Equal(t, saved[0].ID, got.ID)
	assert.Equal(t, models.IntervalMonthly, got.Interval)
	require.NotNil(t, got.NextExpected)
	assert.Equal(t, "2025-10-08", got.NextExpected.Format(models.DateLayout))
	assert.True(t, got.BaselineAmount.Equal(decimal.RequireFromString("15.99")))
	assert.Equal(t, models.EngineOwned(), got.Ownership)
	assert.InDelta(t, 0.6667, got.Confidence, 1e-9)

	demoted := *got
	demoted.Interval = models.IntervalIrregular
	demoted.NextExpected = nil
	_, err = db.ApplyUpserts([]detection.Upsert{{Op: detection.OpUpdate, Subscription: demoted}})
	require.NoError(t, err)

	got, err = db.GetSubscription(saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalIrregular, got.Interval)
	assert.Nil(t, got.NextExpected)
}

func TestApplyUpserts_Atomic(t *testing.T) {
	db := testDB(t)
	ghost := create("ghost", models.IntervalMonthly, nil)
	ghost.Op = detection.OpUpdate

	_, err := db.ApplyUpserts([]detection.Upsert{create("netflix", models.IntervalMonthly, nil), ghost})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	subs, err := db.ListSubscriptions()
	require.NoError(t, err)
	assert.Empty(t, subs, "failed batch must not leave partial writes")
}

func TestSaveOverride(t *testing.T) {
	db := testDB(t)
	saved, err := db.ApplyUpserts([]detection.Upsert{create("netflix", models.IntervalMonthly, nil)})
	require.NoError(t, err)

	sub := saved[0]
	sub.Status = models.StatusCancelled
	sub.Ownership.Lifecycle = models.OwnerUser
	require.NoError(t, db.SaveOverride(sub))

	got, err := db.GetSubscription(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.True(t, got.Overridden())

	sub.ID = "missing"
	assert.ErrorIs(t, db.SaveOverride(sub), apperr.ErrNotFound)
}

func TestGetSubscription_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetSubscription("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = db.GetSubscriptionByVendor("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInvoices(t *testing.T) {
	db := testDB(t)
	total := decimal.RequireFromString("29.99")
	require.NoError(t, db.InsertInvoice(models.Invoice{
		ID:            "inv1",
		VendorName:    "Adobe Inc.",
		VendorKey:     "adobe",
		Total:         &total,
		InvoiceDate:   "2025-07-01",
		BillingPeriod: "monthly",
		Filename:      "adobe.pdf",
		Raw:           map[string]any{"source": "mock"},
	}))
	require.NoError(t, db.InsertInvoice(models.Invoice{ID: "inv2", VendorName: "Unknown"}))

	invs, err := db.ListInvoices(10)
	require.NoError(t, err)
	require.Len(t, invs, 2)

	var adobe models.Invoice
	for _, inv := range invs {
		if inv.ID == "inv1" {
			adobe = inv
		}
	}
	require.NotNil(t, adobe.Total)
	assert.True(t, adobe.Total.Equal(total))
	assert.Equal(t, "mock", adobe.Raw["source"])
}

func TestImports(t *testing.T) {
	db := testDB(t)
	ok, err := db.HasImport("abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.RecordImport(Import{Checksum: "abc", Filename: "jan.csv", Source: models.SourceInbox, Rows: 3}))
	require.NoError(t, db.RecordImport(Import{Checksum: "abc", Filename: "copy.csv"}))

	ok, err = db.HasImport("abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	db := testDB(t)
	_, err := db.InsertTransactions([]TransactionRow{row("a", "Netflix", "netflix", "15.99", "2025-07-08", "")})
	require.NoError(t, err)
	_, err = db.ApplyUpserts([]detection.Upsert{create("netflix", models.IntervalMonthly, nil)})
	require.NoError(t, err)
	require.NoError(t, db.RecordImport(Import{Checksum: "x"}))

	require.NoError(t, db.Reset())

	txns, err := db.AllTransactions()
	require.NoError(t, err)
	assert.Empty(t, txns)
	subs, err := db.ListSubscriptions()
	require.NoError(t, err)
	assert.Empty(t, subs)
	ok, err := db.HasImport("x")
	require.NoError(t, err)
	assert.False(t, ok)
	res, err := db.SearchTransactions("netflix", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}
