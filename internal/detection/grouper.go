package detection

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/starford/subtrack/internal/models"
)

// Grouping is the Grouper output: transactions partitioned by vendor key.
type Grouping struct {
	// Groups maps vendor key to its transactions, oldest first.
	Groups map[string][]models.Transaction
	// Keys lists the vendor keys in sorted order.
	Keys []string
	// Skipped counts transactions whose vendor name normalized to nothing.
	Skipped    int
	SkippedIDs []string
	// Credits counts non-positive amounts (refunds, reversals), which are
	// not charges and are left out of every group.
	Credits int
}

// Group partitions txns by normalized vendor key and sorts each group by
// date, breaking ties by id.
func Group(txns []models.Transaction, n *Normalizer) (*Grouping, error) {
	g := &Grouping{Groups: make(map[string][]models.Transaction)}

	for _, t := range txns {
		if err := checkTransaction(t); err != nil {
			return nil, err
		}
		if !t.Amount.IsPositive() {
			g.Credits++
			continue
		}
		key, err := n.Normalize(t.RawVendorName)
		if err != nil {
			if errors.Is(err, ErrInvalidVendorName) {
				g.Skipped++
				g.SkippedIDs = append(g.SkippedIDs, t.ID)
				continue
			}
			return nil, err
		}
		t.Date = models.Day(t.Date)
		g.Groups[key] = append(g.Groups[key], t)
	}

	for key, items := range g.Groups {
		slices.SortFunc(items, compareTransactions)
		g.Keys = append(g.Keys, key)
	}
	sort.Strings(g.Keys)
	return g, nil
}

func compareTransactions(a, b models.Transaction) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// checkTransaction enforces the input contract. Ingestion validates records
// before they reach the engine, so a failure here is a caller bug.
func checkTransaction(t models.Transaction) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: transaction without id", ErrMalformedInput)
	case t.Date.IsZero():
		return fmt.Errorf("%w: transaction %s has no date", ErrMalformedInput, t.ID)
	case t.Amount.IsZero():
		return fmt.Errorf("%w: transaction %s has no amount", ErrMalformedInput, t.ID)
	}
	return nil
}
