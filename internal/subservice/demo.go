package subservice

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

type seedSeries struct {
	name    string
	offsets []int // days before today
	amounts []string
}

var demoSeries = []seedSeries{
	{"Netflix", []int{0, 30, 60}, []string{"15.99"}},
	{"Adobe Inc.", []int{5, 35, 65}, []string{"29.99"}},
	{"Spotify", []int{2, 32, 62}, []string{"9.99"}},
	{"Starbucks", []int{3, 11, 20}, []string{"5.50", "4.25", "6.10"}},
}

// Seed inserts the demo transaction set dated relative to today. Seeding
// twice inserts nothing new.
func (s *Service) Seed(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	today := models.Day(s.now())
	var txns []models.Transaction
	for _, series := range demoSeries {
		for i, off := range series.offsets {
			amount := series.amounts[i%len(series.amounts)]
			d := today.AddDate(0, 0, -off)
			txns = append(txns, models.Transaction{
				RawVendorName: series.name,
				Amount:        decimal.RequireFromString(amount),
				Currency:      "USD",
				Date:          d,
				Source:        models.SourceSeed,
				ExternalID:    fmt.Sprintf("%s:%s:%s", models.SourceSeed, series.name, d.Format(models.DateLayout)),
			})
		}
	}
	return s.insert(models.SourceSeed, txns)
}

// Reset deletes all stored data.
func (s *Service) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Reset(); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetSubscriptions(nil)
	}
	return nil
}
