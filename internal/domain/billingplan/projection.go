package billingplan

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanProjection is the cached view of one product attachment, keyed by
// stable product id.
type PlanProjection struct {
	SubscriptionID string `json:"subscription_id"`
	ScheduleID     string `json:"schedule_id"`
}

// FeatureProjection is the cached usage snapshot of one feature.
type FeatureProjection struct {
	// Usage is consumed allowance; GrantedBalance is total granted
	// (allowance plus prepaid quantity).
	Usage          decimal.Decimal `json:"usage"`
	GrantedBalance decimal.Decimal `json:"granted_balance"`
}

// CustomerProjection is the serialized customer read model kept in the
// cache layer and compared by the consistency verifier.
type CustomerProjection struct {
	CustomerID string `json:"customer_id"`

	// Plans maps stable product id to its attachment identifiers.
	Plans map[string]PlanProjection `json:"plans"`

	// ScheduledPlans maps stable product id of scheduled attachments.
	ScheduledPlans map[string]PlanProjection `json:"scheduled_plans"`

	Features map[string]FeatureProjection `json:"features"`

	ComputedAt time.Time `json:"computed_at"`
}

// MismatchKind classifies a verifier finding.
type MismatchKind string

const (
	MismatchMissingPlan       MismatchKind = "missing_plan"
	MismatchSubscriptionID    MismatchKind = "subscription_id"
	MismatchScheduleID        MismatchKind = "schedule_id"
	MismatchMissingScheduled  MismatchKind = "missing_scheduled_plan"
	MismatchScheduledSubID    MismatchKind = "scheduled_subscription_id"
	MismatchScheduledSchedule MismatchKind = "scheduled_schedule_id"
)

// Mismatch is one divergence between the cached and fresh projections.
type Mismatch struct {
	Kind      MismatchKind `json:"kind"`
	ProductID string       `json:"product_id"`
	Cached    string       `json:"cached"`
	Fresh     string       `json:"fresh"`
}

// RaceFlag records a suspicious balance movement where usage consumed
// almost exactly a concurrent grant, indicating a read-after-write
// ordering bug rather than real consumption.
type RaceFlag struct {
	FeatureID       string          `json:"feature_id"`
	UsageIncrease   decimal.Decimal `json:"usage_increase"`
	GrantedIncrease decimal.Decimal `json:"granted_increase"`
}

// ConsistencyReport is the verifier's outcome for one customer. It never
// blocks the triggering request.
type ConsistencyReport struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`

	Mismatches []Mismatch `json:"mismatches"`
	RaceFlags  []RaceFlag `json:"race_flags"`

	// CacheInvalidated is set when a mismatch caused the cached entry to
	// be dropped.
	CacheInvalidated bool `json:"cache_invalidated"`

	CheckedAt time.Time `json:"checked_at"`
}

// Clean reports whether the verifier found nothing wrong.
func (r *ConsistencyReport) Clean() bool {
	return len(r.Mismatches) == 0 && len(r.RaceFlags) == 0
}
