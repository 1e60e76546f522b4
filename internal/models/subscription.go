package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is the billing cadence of a subscription.
type Interval string

// Intervals.
const (
	IntervalWeekly    Interval = "weekly"
	IntervalMonthly   Interval = "monthly"
	IntervalYearly    Interval = "yearly"
	IntervalIrregular Interval = "irregular"
)

// Valid reports whether i is a known interval.
func (i Interval) Valid() bool {
	switch i {
	case IntervalWeekly, IntervalMonthly, IntervalYearly, IntervalIrregular:
		return true
	}
	return false
}

// Status is the lifecycle state of a subscription.
type Status string

// Statuses. StatusInferred is the only status the detection engine assigns.
const (
	StatusInferred  Status = "inferred"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusIgnored   Status = "ignored"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInferred, StatusActive, StatusCancelled, StatusIgnored:
		return true
	}
	return false
}

// Owner says who is authoritative for a group of subscription fields.
type Owner string

// Owners.
const (
	OwnerEngine Owner = "engine"
	OwnerUser   Owner = "user"
)

// Ownership tags each subscription field group with its owner.
//
// Lifecycle covers Status, Interval and NextExpected. Observation covers
// BaselineAmount, Confidence, FirstSeen, LastSeen, Occurrences and
// VendorDisplayName. Detection only writes groups owned by OwnerEngine.
type Ownership struct {
	Lifecycle   Owner `json:"lifecycle"`
	Observation Owner `json:"observation"`
}

// EngineOwned is the ownership of a freshly inferred subscription.
func EngineOwned() Ownership {
	return Ownership{Lifecycle: OwnerEngine, Observation: OwnerEngine}
}

// Subscription is a recurring charge for a single vendor.
// VendorKey is the identity; ID is a surrogate used by the API.
type Subscription struct {
	ID                string          `json:"id"`
	VendorKey         string          `json:"vendor_key"`
	VendorDisplayName string          `json:"vendor_display_name"`
	Interval          Interval        `json:"interval"`
	BaselineAmount    decimal.Decimal `json:"baseline_amount"`
	Status            Status          `json:"status"`
	NextExpected      *time.Time      `json:"next_expected,omitempty"`
	Confidence        float64         `json:"confidence"`
	FirstSeen         time.Time       `json:"first_seen"`
	LastSeen          time.Time       `json:"last_seen"`
	Occurrences       int             `json:"occurrences"`
	Ownership         Ownership       `json:"ownership"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Overridden reports whether the user owns the lifecycle fields.
func (s *Subscription) Overridden() bool {
	return s.Ownership.Lifecycle == OwnerUser
}
