package types

import (
	"time"

	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/samber/lo"
)

// ResetInterval is the cadence at which an entitlement's balance resets.
type ResetInterval string

const (
	ResetIntervalMinute     ResetInterval = "minute"
	ResetIntervalHour       ResetInterval = "hour"
	ResetIntervalDay        ResetInterval = "day"
	ResetIntervalWeek       ResetInterval = "week"
	ResetIntervalMonth      ResetInterval = "month"
	ResetIntervalQuarter    ResetInterval = "quarter"
	ResetIntervalYear       ResetInterval = "year"
	ResetIntervalSemiAnnual ResetInterval = "semi_annual"
	// ResetIntervalLifetime never resets; the allowance is granted once.
	ResetIntervalLifetime ResetInterval = "lifetime"
)

var ResetIntervalValues = []ResetInterval{
	ResetIntervalMinute,
	ResetIntervalHour,
	ResetIntervalDay,
	ResetIntervalWeek,
	ResetIntervalMonth,
	ResetIntervalQuarter,
	ResetIntervalYear,
	ResetIntervalSemiAnnual,
	ResetIntervalLifetime,
}

// resetIntervalRank orders intervals by granularity for deduction ordering.
// Usage is deducted from fine-grained grants before coarse ones.
var resetIntervalRank = map[ResetInterval]int{
	ResetIntervalMinute:     1,
	ResetIntervalHour:       2,
	ResetIntervalDay:        3,
	ResetIntervalWeek:       4,
	ResetIntervalMonth:      5,
	ResetIntervalQuarter:    6,
	ResetIntervalYear:       7,
	ResetIntervalSemiAnnual: 8,
	ResetIntervalLifetime:   9,
}

// Rank returns the granularity rank of the interval. Unknown intervals rank
// after lifetime so they are deducted from last.
func (i ResetInterval) Rank() int {
	if rank, ok := resetIntervalRank[i]; ok {
		return rank
	}
	return len(resetIntervalRank) + 1
}

func (i ResetInterval) Validate() error {
	if !lo.Contains(ResetIntervalValues, i) {
		return ierr.NewError("invalid reset interval").
			WithHint("Reset interval must be one of minute, hour, day, week, month, quarter, year, semi_annual or lifetime").
			WithReportableDetails(map[string]any{
				"allowed_values": ResetIntervalValues,
				"provided_value": i,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (i ResetInterval) String() string {
	return string(i)
}

// NextReset returns the next reset boundary strictly after from.
func (i ResetInterval) NextReset(from time.Time) time.Time {
	switch i {
	case ResetIntervalMinute:
		return from.Add(time.Minute)
	case ResetIntervalHour:
		return from.Add(time.Hour)
	case ResetIntervalDay:
		return from.AddDate(0, 0, 1)
	case ResetIntervalWeek:
		return from.AddDate(0, 0, 7)
	case ResetIntervalMonth:
		return from.AddDate(0, 1, 0)
	case ResetIntervalQuarter:
		return from.AddDate(0, 3, 0)
	case ResetIntervalSemiAnnual:
		return from.AddDate(0, 6, 0)
	case ResetIntervalYear:
		return from.AddDate(1, 0, 0)
	default:
		// lifetime entitlements never reset
		return time.Time{}
	}
}

// BillingInterval is the cadence at which a price bills.
type BillingInterval string

const (
	BillingIntervalOneOff     BillingInterval = "one_off"
	BillingIntervalWeek       BillingInterval = "week"
	BillingIntervalMonth      BillingInterval = "month"
	BillingIntervalQuarter    BillingInterval = "quarter"
	BillingIntervalSemiAnnual BillingInterval = "semi_annual"
	BillingIntervalYear       BillingInterval = "year"
)

var BillingIntervalValues = []BillingInterval{
	BillingIntervalOneOff,
	BillingIntervalWeek,
	BillingIntervalMonth,
	BillingIntervalQuarter,
	BillingIntervalSemiAnnual,
	BillingIntervalYear,
}

// billingIntervalRank orders billing intervals so a shorter interval sorts
// as "smaller" when products on different cadences are compared.
var billingIntervalRank = map[BillingInterval]int{
	BillingIntervalOneOff:     0,
	BillingIntervalWeek:       1,
	BillingIntervalMonth:      2,
	BillingIntervalQuarter:    3,
	BillingIntervalSemiAnnual: 4,
	BillingIntervalYear:       5,
}

func (i BillingInterval) Rank() int {
	if rank, ok := billingIntervalRank[i]; ok {
		return rank
	}
	return len(billingIntervalRank) + 1
}

func (i BillingInterval) Validate() error {
	if !lo.Contains(BillingIntervalValues, i) {
		return ierr.NewError("invalid billing interval").
			WithHint("Billing interval must be one of one_off, week, month, quarter, semi_annual or year").
			WithReportableDetails(map[string]any{
				"allowed_values": BillingIntervalValues,
				"provided_value": i,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (i BillingInterval) String() string {
	return string(i)
}
