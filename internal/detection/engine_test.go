package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/subtrack/internal/models"
)

func TestNewEngine_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min occurrences below two", func(c *Config) { c.MinOccurrences = 1 }},
		{"negative tolerance", func(c *Config) { c.AmountToleranceAbs = -1 }},
		{"pct above one", func(c *Config) { c.AmountTolerancePct = 1.5 }},
		{"no bands", func(c *Config) { c.Bands = nil }},
		{"inverted band", func(c *Config) { c.Bands[0].MinDays = 20 }},
		{"irregular band", func(c *Config) { c.Bands[0].Interval = models.IntervalIrregular }},
		{"zero step", func(c *Config) { c.Bands[1].StepDays = 0 }},
		{"empty suffix", func(c *Config) { c.VendorSuffixes = []string{"inc", ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewEngine_DefaultConfigValid(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, e.Config().MinOccurrences)
	assert.NotNil(t, e.Normalizer())
}

func TestClassify_MalformedInput(t *testing.T) {
	e := testEngine(t)
	bad := tx(t, "", "Netflix", "15.99", "2025-01-01")
	_, err := e.Classify([]models.Transaction{bad})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestClassify_CountsSkippedAndCredits(t *testing.T) {
	e := testEngine(t)
	txns := series(t, "n", "Netflix", "15.99", "2025-01-01", 30, 3)
	txns = append(txns,
		tx(t, "junk", "***", "3.00", "2025-01-04"),
		tx(t, "refund", "Netflix", "-15.99", "2025-02-02"),
	)

	res, err := e.Classify(txns)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"junk"}, res.SkippedIDs)
	assert.Equal(t, 1, res.Credits)
	require.Len(t, res.Classifications, 1)
	assert.Equal(t, 3, res.Classifications[0].Occurrences)
}

func TestClassify_EmptyInput(t *testing.T) {
	e := testEngine(t)
	res, err := e.Classify(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Classifications)
	assert.Empty(t, res.Subscriptions())
}

func TestDetect_EndToEndIdempotent(t *testing.T) {
	e := testEngine(t)
	txns := append(
		series(t, "n", "Netflix", "15.99", "2025-06-08", 31, 4),
		series(t, "s", "Spotify AB", "9.99", "2025-06-01", 30, 3)...,
	)

	res, err := e.Classify(txns)
	require.NoError(t, err)
	state := Apply(nil, e.Reconcile(res.Classifications, nil))
	require.Len(t, state, 2)

	res, err = e.Classify(txns)
	require.NoError(t, err)
	assert.Empty(t, e.Reconcile(res.Classifications, state))
}
