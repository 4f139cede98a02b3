package types

import (
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/samber/lo"
)

// CustomerProductStatus tracks the lifecycle of a customer's attachment to
// a product version. Transitions:
// (none) -> scheduled | active | trialing -> past_due <-> active -> expired.
// A scheduled attachment may be deleted before it ever activates.
type CustomerProductStatus string

const (
	CustomerProductStatusScheduled CustomerProductStatus = "scheduled"
	CustomerProductStatusActive    CustomerProductStatus = "active"
	CustomerProductStatusPastDue   CustomerProductStatus = "past_due"
	CustomerProductStatusTrialing  CustomerProductStatus = "trialing"
	CustomerProductStatusExpired   CustomerProductStatus = "expired"
	CustomerProductStatusUnknown   CustomerProductStatus = "unknown"
)

var CustomerProductStatusValues = []CustomerProductStatus{
	CustomerProductStatusScheduled,
	CustomerProductStatusActive,
	CustomerProductStatusPastDue,
	CustomerProductStatusTrialing,
	CustomerProductStatusExpired,
	CustomerProductStatusUnknown,
}

// ActiveCustomerProductStatuses are the statuses in which a product grants
// entitlements right now.
var ActiveCustomerProductStatuses = []CustomerProductStatus{
	CustomerProductStatusActive,
	CustomerProductStatusPastDue,
	CustomerProductStatusTrialing,
}

// RelevantCustomerProductStatuses additionally include scheduled
// attachments, which participate in classification and plan resolution.
var RelevantCustomerProductStatuses = []CustomerProductStatus{
	CustomerProductStatusActive,
	CustomerProductStatusPastDue,
	CustomerProductStatusTrialing,
	CustomerProductStatusScheduled,
}

func (s CustomerProductStatus) Validate() error {
	if !lo.Contains(CustomerProductStatusValues, s) {
		return ierr.NewError("invalid customer product status").
			WithReportableDetails(map[string]any{
				"allowed_values": CustomerProductStatusValues,
				"provided_value": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (s CustomerProductStatus) String() string {
	return string(s)
}

// AttachTiming is when a resolved plan takes effect.
type AttachTiming string

const (
	// AttachTimingImmediate applies the change now (attach, upgrade).
	AttachTimingImmediate AttachTiming = "immediate"
	// AttachTimingScheduled applies the change at the current period end
	// (downgrade), so already-paid time is not forfeited.
	AttachTimingScheduled AttachTiming = "scheduled"
)

// OngoingAction is what the resolver decided to do with the current
// ongoing main product in the target group.
type OngoingAction string

const (
	OngoingActionNone OngoingAction = "none"
	// OngoingActionExpire ends the ongoing product immediately.
	OngoingActionExpire OngoingAction = "expire"
	// OngoingActionCancel soft-cancels at period end; reversible until then.
	OngoingActionCancel OngoingAction = "cancel"
)

// BillingOperation is the requested change a billing plan resolves.
type BillingOperation string

const (
	BillingOperationAttach BillingOperation = "attach"
	BillingOperationUpdate BillingOperation = "update"
	BillingOperationCancel BillingOperation = "cancel"
)

var BillingOperationValues = []BillingOperation{
	BillingOperationAttach,
	BillingOperationUpdate,
	BillingOperationCancel,
}

func (o BillingOperation) Validate() error {
	if !lo.Contains(BillingOperationValues, o) {
		return ierr.NewError("invalid billing operation").
			WithHint("Operation must be attach, update or cancel").
			WithReportableDetails(map[string]any{
				"allowed_values": BillingOperationValues,
				"provided_value": o,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
