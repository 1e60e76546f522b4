package detection

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/subtrack/internal/models"
)

// Band is a closed range of median gaps (in days) that maps to an interval.
// StepDays is added to the last charge date to predict the next one.
type Band struct {
	Interval models.Interval `yaml:"interval"`
	MinDays  float64         `yaml:"min_days"`
	MaxDays  float64         `yaml:"max_days"`
	StepDays int             `yaml:"step_days"`
}

// Validate validates the band.
func (b Band) Validate() error {
	if err := validation.ValidateStruct(&b,
		validation.Field(&b.Interval, validation.Required, validation.In(
			models.IntervalWeekly, models.IntervalMonthly, models.IntervalYearly)),
		validation.Field(&b.MinDays, validation.Min(0.0)),
		validation.Field(&b.MaxDays, validation.Required),
		validation.Field(&b.StepDays, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if b.MinDays > b.MaxDays {
		return fmt.Errorf("band %s: min_days %.1f > max_days %.1f", b.Interval, b.MinDays, b.MaxDays)
	}
	return nil
}

// Config holds every tunable threshold of the detection heuristic.
type Config struct {
	// MinOccurrences is the smallest group (and amount-consistent subset) that
	// can carry periodicity evidence.
	MinOccurrences int `yaml:"min_occurrences"`
	// AmountTolerancePct and AmountToleranceAbs define the amount band around
	// the group median; the wider of the two wins.
	AmountTolerancePct float64 `yaml:"amount_tolerance_pct"`
	AmountToleranceAbs float64 `yaml:"amount_tolerance_abs"`
	// MaxGapCV is the largest coefficient of variation of gaps still treated
	// as periodic.
	MaxGapCV float64 `yaml:"max_gap_cv"`
	// ConfidenceGapWeight and ConfidenceAmountWeight scale how fast confidence
	// falls as gap and amount spread grow.
	ConfidenceGapWeight    float64  `yaml:"confidence_gap_weight"`
	ConfidenceAmountWeight float64  `yaml:"confidence_amount_weight"`
	Bands                  []Band   `yaml:"bands"`
	VendorSuffixes         []string `yaml:"vendor_suffixes"`
}

// Validate validates the detection configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinOccurrences, validation.Required, validation.Min(2)),
		validation.Field(&c.AmountTolerancePct, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.AmountToleranceAbs, validation.Min(0.0)),
		validation.Field(&c.MaxGapCV, validation.Required, validation.Min(0.0)),
		validation.Field(&c.ConfidenceGapWeight, validation.Min(0.0)),
		validation.Field(&c.ConfidenceAmountWeight, validation.Min(0.0)),
		validation.Field(&c.Bands, validation.Required),
		validation.Field(&c.VendorSuffixes, validation.Each(validation.Required)),
	)
}

// DefaultSuffixes are the legal-entity suffixes stripped from vendor names.
var DefaultSuffixes = []string{"inc", "inc.", "llc", "co", "co.", "corp", "corp."}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinOccurrences:         2,
		AmountTolerancePct:     0.05,
		AmountToleranceAbs:     0.05,
		MaxGapCV:               0.25,
		ConfidenceGapWeight:    2,
		ConfidenceAmountWeight: 10,
		Bands: []Band{
			{Interval: models.IntervalWeekly, MinDays: 5, MaxDays: 9, StepDays: 7},
			{Interval: models.IntervalMonthly, MinDays: 24, MaxDays: 35, StepDays: 30},
			{Interval: models.IntervalYearly, MinDays: 355, MaxDays: 375, StepDays: 365},
		},
		VendorSuffixes: append([]string(nil), DefaultSuffixes...),
	}
}
