package types

import (
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/samber/lo"
)

// PriceType distinguishes fixed recurring amounts from usage-based prices.
type PriceType string

const (
	PriceTypeFixed PriceType = "fixed"
	PriceTypeUsage PriceType = "usage"
)

// BillingType is the derived billing behavior of a price.
type BillingType string

const (
	// BillingTypeFlat is a fixed recurring charge.
	BillingTypeFlat BillingType = "flat"
	// BillingTypeOneOff is charged once on attach and never recurs.
	BillingTypeOneOff BillingType = "one_off"
	// BillingTypeUsageInAdvance (prepaid) bills purchased quantity up front.
	BillingTypeUsageInAdvance BillingType = "usage_in_advance"
	// BillingTypeUsageInArrear (pay-per-use) bills consumed usage at period end.
	BillingTypeUsageInArrear BillingType = "usage_in_arrear"
)

var BillingTypeValues = []BillingType{
	BillingTypeFlat,
	BillingTypeOneOff,
	BillingTypeUsageInAdvance,
	BillingTypeUsageInArrear,
}

func (t BillingType) Validate() error {
	if !lo.Contains(BillingTypeValues, t) {
		return ierr.NewError("invalid billing type").
			WithHint("Billing type must be flat, one_off, usage_in_advance or usage_in_arrear").
			WithReportableDetails(map[string]any{
				"allowed_values": BillingTypeValues,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (t BillingType) String() string {
	return string(t)
}

// ProcessorType identifies the external payment processor backing a
// customer product.
type ProcessorType string

const (
	ProcessorTypeStripe ProcessorType = "stripe"
)

// MAX_BILLING_AMOUNT is the maximum allowed billing amount (as a safeguard)
const MAX_BILLING_AMOUNT = 1000000000000 // 1 trillion
