package detection

import (
	"sort"
	"time"

	"github.com/starford/subtrack/internal/models"
)

// Op is the kind of change an Upsert applies.
type Op string

// Ops.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Subscription field names reported in Upsert.Fields.
const (
	FieldDisplayName    = "vendor_display_name"
	FieldBaselineAmount = "baseline_amount"
	FieldConfidence     = "confidence"
	FieldFirstSeen      = "first_seen"
	FieldLastSeen       = "last_seen"
	FieldOccurrences    = "occurrences"
	FieldStatus         = "status"
	FieldInterval       = "interval"
	FieldNextExpected   = "next_expected"
)

// Upsert is a create or field update of one subscription.
type Upsert struct {
	Op           Op                  `json:"op"`
	Subscription models.Subscription `json:"subscription"`
	Fields       []string            `json:"fields"`
}

// Reconcile merges classifications into the existing subscriptions and
// returns the changes to persist. Existing subscriptions are never removed,
// and fields owned by the user are never written.
func (e *Engine) Reconcile(classifications []Classification, existing []models.Subscription) []Upsert {
	byKey := make(map[string]models.Subscription, len(existing))
	for _, s := range existing {
		byKey[s.VendorKey] = s
	}

	var ups []Upsert
	for _, c := range classifications {
		cur, ok := byKey[c.VendorKey]
		if !ok {
			if !c.IsSubscription() {
				continue
			}
			ups = append(ups, Upsert{
				Op:           OpCreate,
				Subscription: newSubscription(c),
				Fields: []string{
					FieldDisplayName, FieldBaselineAmount, FieldConfidence, FieldFirstSeen,
					FieldLastSeen, FieldOccurrences, FieldStatus, FieldInterval, FieldNextExpected,
				},
			})
			continue
		}

		next := cur
		next.Ownership = effectiveOwnership(cur)
		if fields := refresh(&next, c); len(fields) > 0 {
			ups = append(ups, Upsert{Op: OpUpdate, Subscription: next, Fields: fields})
		}
	}
	return ups
}

func newSubscription(c Classification) models.Subscription {
	s := models.Subscription{
		VendorKey: c.VendorKey,
		Status:    models.StatusInferred,
		Ownership: models.EngineOwned(),
	}
	refresh(&s, c)
	return s
}

// refresh copies engine-owned fields from c into s and returns the names of
// the fields that changed.
func refresh(s *models.Subscription, c Classification) []string {
	var changed []string
	set := func(name string, differs bool, apply func()) {
		if differs {
			apply()
			changed = append(changed, name)
		}
	}

	if s.Ownership.Observation == models.OwnerEngine {
		set(FieldDisplayName, s.VendorDisplayName != c.DisplayName, func() { s.VendorDisplayName = c.DisplayName })
		set(FieldBaselineAmount, !s.BaselineAmount.Equal(c.BaselineAmount), func() { s.BaselineAmount = c.BaselineAmount })
		set(FieldConfidence, s.Confidence != c.Confidence, func() { s.Confidence = c.Confidence })
		set(FieldFirstSeen, !s.FirstSeen.Equal(c.FirstSeen), func() { s.FirstSeen = c.FirstSeen })
		set(FieldLastSeen, !s.LastSeen.Equal(c.LastSeen), func() { s.LastSeen = c.LastSeen })
		set(FieldOccurrences, s.Occurrences != c.Occurrences, func() { s.Occurrences = c.Occurrences })
	}

	if s.Ownership.Lifecycle == models.OwnerEngine {
		set(FieldStatus, s.Status != models.StatusInferred, func() { s.Status = models.StatusInferred })
		set(FieldInterval, s.Interval != c.Interval, func() { s.Interval = c.Interval })
		set(FieldNextExpected, !sameDate(s.NextExpected, c.NextExpected), func() { s.NextExpected = cloneTime(c.NextExpected) })
	}
	return changed
}

// effectiveOwnership fills in ownership for records persisted without it:
// anything whose status moved away from inferred was set by a user.
func effectiveOwnership(s models.Subscription) models.Ownership {
	o := s.Ownership
	if o.Lifecycle == "" {
		o.Lifecycle = models.OwnerEngine
		if s.Status != "" && s.Status != models.StatusInferred {
			o.Lifecycle = models.OwnerUser
		}
	}
	if o.Observation == "" {
		o.Observation = models.OwnerEngine
	}
	return o
}

// Apply materializes upserts on top of existing and returns the resulting
// subscription set ordered by vendor key.
func Apply(existing []models.Subscription, ups []Upsert) []models.Subscription {
	byKey := make(map[string]models.Subscription, len(existing)+len(ups))
	for _, s := range existing {
		byKey[s.VendorKey] = s
	}
	for _, u := range ups {
		byKey[u.Subscription.VendorKey] = u.Subscription
	}
	out := make([]models.Subscription, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorKey < out[j].VendorKey })
	return out
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
