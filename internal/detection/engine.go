// Package detection infers recurring subscriptions from transaction history.
//
// The engine runs in four forward-only stages: vendor normalization,
// grouping, periodicity classification and reconciliation with persisted
// subscriptions. It is pure and holds no state between calls, so callers own
// any serialization of runs against shared storage.
package detection

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// Engine classifies transaction history and reconciles it with stored
// subscriptions. It is safe for concurrent use.
type Engine struct {
	cfg          Config
	normalizer   *Normalizer
	bands        []Band
	tolerancePct decimal.Decimal
	toleranceAbs decimal.Decimal
}

// Result is the output of Classify.
type Result struct {
	Classifications []Classification `json:"classifications"`
	Skipped         int              `json:"skipped"`
	SkippedIDs      []string         `json:"skipped_ids,omitempty"`
	Credits         int              `json:"credits"`
}

// Subscriptions returns the classifications that represent subscriptions.
func (r *Result) Subscriptions() []Classification {
	var out []Classification
	for _, c := range r.Classifications {
		if c.IsSubscription() {
			out = append(out, c)
		}
	}
	return out
}

// NewEngine validates cfg and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("detection: invalid config: %w", err)
	}
	bands := slices.Clone(cfg.Bands)
	slices.SortStableFunc(bands, func(a, b Band) int { return a.StepDays - b.StepDays })

	return &Engine{
		cfg:          cfg,
		normalizer:   NewNormalizer(cfg.VendorSuffixes),
		bands:        bands,
		tolerancePct: decimal.NewFromFloat(cfg.AmountTolerancePct),
		toleranceAbs: decimal.NewFromFloat(cfg.AmountToleranceAbs),
	}, nil
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Normalizer returns the engine's vendor normalizer.
func (e *Engine) Normalizer() *Normalizer {
	return e.normalizer
}

// Group partitions txns by vendor key.
func (e *Engine) Group(txns []models.Transaction) (*Grouping, error) {
	return Group(txns, e.normalizer)
}

// Classify groups txns by vendor and classifies every group. Classifications
// are ordered by vendor key. It fails only on malformed input.
func (e *Engine) Classify(txns []models.Transaction) (*Result, error) {
	g, err := e.Group(txns)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Classifications: make([]Classification, 0, len(g.Keys)),
		Skipped:         g.Skipped,
		SkippedIDs:      g.SkippedIDs,
		Credits:         g.Credits,
	}
	for _, key := range g.Keys {
		res.Classifications = append(res.Classifications, e.classify(key, g.Groups[key]))
	}
	return res, nil
}
