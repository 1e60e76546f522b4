package detection

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/starford/subtrack/internal/models"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func tx(t *testing.T, id, vendor, amount, date string) models.Transaction {
	t.Helper()
	return models.Transaction{
		ID:            id,
		RawVendorName: vendor,
		Amount:        decimal.RequireFromString(amount),
		Date:          day(t, date),
	}
}

// series builds n charges of the same amount, gapDays apart, starting at start.
func series(t *testing.T, prefix, vendor, amount, start string, gapDays, n int) []models.Transaction {
	t.Helper()
	first := day(t, start)
	out := make([]models.Transaction, 0, n)
	for i := range n {
		d := first.AddDate(0, 0, i*gapDays)
		out = append(out, tx(t, prefix+"-"+d.Format(models.DateLayout), vendor, amount, d.Format(models.DateLayout)))
	}
	return out
}

func classificationFor(t *testing.T, res *Result, key string) Classification {
	t.Helper()
	for _, c := range res.Classifications {
		if c.VendorKey == key {
			return c
		}
	}
	t.Fatalf("no classification for %q", key)
	return Classification{}
}
