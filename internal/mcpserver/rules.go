package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/subtrack/internal/detection"
)

// RulesURI is the resource holding the detection rules.
const RulesURI = "subtrack://detection-rules"

// RenderRules describes the detection heuristic with the thresholds of cfg,
// so LLM clients can explain why a vendor was or was not flagged.
func RenderRules(cfg detection.Config) string {
	var b strings.Builder
	b.WriteString("# Subscription Detection Rules\n\n")
	b.WriteString("Detection reads the full transaction history and groups charges by vendor.\n\n")

	b.WriteString("## Vendor keys\n\n")
	b.WriteString("Raw vendor names are lowercased, diacritics folded and punctuation removed. ")
	fmt.Fprintf(&b, "Trailing legal suffixes are dropped (%s) unless that would leave nothing. ",
		strings.Join(cfg.VendorSuffixes, ", "))
	b.WriteString("Names that normalize to nothing are skipped. Refunds and other non-positive amounts never count.\n\n")

	b.WriteString("## Periodicity\n\n")
	fmt.Fprintf(&b, "1. A vendor needs at least %d charges.\n", cfg.MinOccurrences)
	fmt.Fprintf(&b, "2. Charges within %.0f%% or %.2f of the median amount (whichever is wider) are kept; "+
		"the kept charges must still number at least %d.\n",
		cfg.AmountTolerancePct*100, cfg.AmountToleranceAbs, cfg.MinOccurrences)
	b.WriteString("3. The median gap between kept charges selects the interval:\n\n")
	b.WriteString("| Interval | Gap (days) | Next charge |\n|---|---|---|\n")
	for _, band := range cfg.Bands {
		fmt.Fprintf(&b, "| %s | %g to %g | last + %d days |\n", band.Interval, band.MinDays, band.MaxDays, band.StepDays)
	}
	fmt.Fprintf(&b, "\n4. Gaps whose coefficient of variation exceeds %.2f are irregular.\n\n", cfg.MaxGapCV)

	b.WriteString("## Confidence\n\n")
	fmt.Fprintf(&b, "confidence = n/(n+1) x 1/(1 + %g x gapCV) x 1/(1 + %g x amountCV), rounded to 4 places.\n\n",
		cfg.ConfidenceGapWeight, cfg.ConfidenceAmountWeight)

	b.WriteString("## Ownership\n\n")
	b.WriteString("Detection creates subscriptions with status `inferred` and refreshes them on every run. ")
	b.WriteString("`override_subscription` hands status, interval and next charge to the user; setting a ")
	b.WriteString("baseline amount also hands over the observed fields. User-owned fields are never rewritten. ")
	b.WriteString("A vendor that stops looking periodic is marked irregular, never deleted.\n")
	return b.String()
}
