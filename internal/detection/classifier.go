package detection

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// Reason explains a classification outcome.
type Reason string

// Reasons.
const (
	ReasonPeriodic                Reason = "periodic"
	ReasonInsufficientOccurrences Reason = "insufficient_occurrences"
	ReasonAmountInconsistent      Reason = "amount_inconsistent"
	ReasonGapOutOfBand            Reason = "gap_out_of_band"
	ReasonGapSpread               Reason = "gap_spread"
)

// Classification is the classifier verdict for one vendor group.
//
// For periodic groups the observation fields describe the amount-consistent
// subsequence. For rejected groups they describe whatever evidence was
// available: the consistent subsequence if one qualified, else the group.
type Classification struct {
	VendorKey      string          `json:"vendor_key"`
	DisplayName    string          `json:"display_name"`
	Interval       models.Interval `json:"interval"`
	Reason         Reason          `json:"reason"`
	BaselineAmount decimal.Decimal `json:"baseline_amount"`
	Confidence     float64         `json:"confidence"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	NextExpected   *time.Time      `json:"next_expected,omitempty"`
	Occurrences    int             `json:"occurrences"`
	MedianGapDays  float64         `json:"median_gap_days"`
}

// IsSubscription reports whether the group was classified as periodic.
func (c Classification) IsSubscription() bool {
	return c.Interval != models.IntervalIrregular
}

// classify runs the periodicity heuristic over one sorted vendor group.
func (e *Engine) classify(key string, txns []models.Transaction) Classification {
	c := Classification{
		VendorKey:   key,
		DisplayName: displayName(txns),
		Interval:    models.IntervalIrregular,
	}
	observe(&c, txns)

	if len(txns) < e.cfg.MinOccurrences {
		c.Reason = ReasonInsufficientOccurrences
		return c
	}

	consistent := e.amountConsistent(txns)
	if len(consistent) < e.cfg.MinOccurrences {
		c.Reason = ReasonAmountInconsistent
		return c
	}
	observe(&c, consistent)

	gaps := gapDays(consistent)
	c.MedianGapDays = medianFloat(gaps)
	gapCV := coefficientOfVariation(gaps)
	c.Confidence = e.confidence(len(consistent), gapCV, coefficientOfVariation(amountFloats(consistent)))

	band, ok := e.matchBand(c.MedianGapDays)
	if !ok {
		c.Reason = ReasonGapOutOfBand
		return c
	}
	if gapCV > e.cfg.MaxGapCV {
		c.Reason = ReasonGapSpread
		return c
	}

	next := c.LastSeen.AddDate(0, 0, band.StepDays)
	c.Interval = band.Interval
	c.NextExpected = &next
	c.Reason = ReasonPeriodic
	return c
}

// observe fills the observation fields from a sorted, non-empty slice.
func observe(c *Classification, txns []models.Transaction) {
	c.FirstSeen = txns[0].Date
	c.LastSeen = txns[len(txns)-1].Date
	c.Occurrences = len(txns)
	c.BaselineAmount = medianAmount(txns)
}

// amountConsistent keeps the transactions whose amount is within tolerance
// of the group median. Order is preserved, so the result stays sorted.
func (e *Engine) amountConsistent(txns []models.Transaction) []models.Transaction {
	median := medianAmount(txns)
	tolerance := decimal.Max(median.Abs().Mul(e.tolerancePct), e.toleranceAbs)

	out := make([]models.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.Amount.Sub(median).Abs().LessThanOrEqual(tolerance) {
			out = append(out, t)
		}
	}
	return out
}

// matchBand returns the first band, in ascending period order, whose closed
// range contains gap. Overlapping boundaries therefore go to the shorter period.
func (e *Engine) matchBand(gap float64) (Band, bool) {
	for _, b := range e.bands {
		if gap >= b.MinDays && gap <= b.MaxDays {
			return b, true
		}
	}
	return Band{}, false
}

// confidence is evidence × gap regularity × amount regularity, each in (0,1].
// It strictly decreases as either coefficient of variation grows.
func (e *Engine) confidence(n int, gapCV, amountCV float64) float64 {
	evidence := float64(n) / float64(n+1)
	gapScore := 1 / (1 + e.cfg.ConfidenceGapWeight*gapCV)
	amountScore := 1 / (1 + e.cfg.ConfidenceAmountWeight*amountCV)
	return math.Round(evidence*gapScore*amountScore*1e4) / 1e4
}

// displayName picks the most frequent raw vendor string; ties go to the one
// seen most recently.
func displayName(txns []models.Transaction) string {
	counts := make(map[string]int)
	last := make(map[string]int)
	for i, t := range txns {
		name := strings.Join(strings.Fields(t.RawVendorName), " ")
		counts[name]++
		last[name] = i
	}
	best := ""
	for name, n := range counts {
		switch {
		case best == "", n > counts[best]:
			best = name
		case n == counts[best] && last[name] > last[best]:
			best = name
		}
	}
	return best
}

func gapDays(txns []models.Transaction) []float64 {
	gaps := make([]float64, 0, len(txns)-1)
	for i := 1; i < len(txns); i++ {
		gaps = append(gaps, math.Round(txns[i].Date.Sub(txns[i-1].Date).Hours()/24))
	}
	return gaps
}

func amountFloats(txns []models.Transaction) []float64 {
	out := make([]float64, len(txns))
	for i, t := range txns {
		out[i] = t.Amount.InexactFloat64()
	}
	return out
}

func medianAmount(txns []models.Transaction) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(txns))
	for i, t := range txns {
		amounts[i] = t.Amount
	}
	slices.SortFunc(amounts, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		return amounts[mid]
	}
	return amounts[mid-1].Add(amounts[mid]).Div(decimal.NewFromInt(2))
}

func medianFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// coefficientOfVariation is the population standard deviation over the mean.
// A zero mean yields zero.
func coefficientOfVariation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss/float64(len(xs))) / math.Abs(mean)
}
