package billingplan

import (
	"time"

	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// LocalMutations is the plan's local side: ordered inserts, updates and
// deletes across customer product state. Mutations are applied only after
// the processor side confirms.
type LocalMutations struct {
	InsertCustomerProducts []*customerproduct.CustomerProduct
	UpdateCustomerProducts []*customerproduct.CustomerProduct
	DeleteCustomerProducts []string

	InsertEntitlements []*customerproduct.CustomerEntitlement
	UpdateEntitlements []*customerproduct.CustomerEntitlement
	DeleteEntitlements []string

	InsertCustomerPrices []*customerproduct.CustomerPrice
	DeleteCustomerPrices []string

	InsertReplaceables []*customerproduct.Replaceable
	DeleteReplaceables []string
}

// IsEmpty reports whether the plan mutates no local state.
func (lm *LocalMutations) IsEmpty() bool {
	return len(lm.InsertCustomerProducts) == 0 &&
		len(lm.UpdateCustomerProducts) == 0 &&
		len(lm.DeleteCustomerProducts) == 0 &&
		len(lm.InsertEntitlements) == 0 &&
		len(lm.UpdateEntitlements) == 0 &&
		len(lm.DeleteEntitlements) == 0 &&
		len(lm.InsertCustomerPrices) == 0 &&
		len(lm.DeleteCustomerPrices) == 0 &&
		len(lm.InsertReplaceables) == 0 &&
		len(lm.DeleteReplaceables) == 0
}

// SubscriptionActionType enumerates the declarative subscription actions
// the plan may issue.
type SubscriptionActionType string

const (
	SubscriptionActionCreate SubscriptionActionType = "create"
	SubscriptionActionUpdate SubscriptionActionType = "update"
	SubscriptionActionCancel SubscriptionActionType = "cancel"
)

// LineItem is one billable line of a subscription or invoice action.
type LineItem struct {
	// PriceInternalID references the local price row; ProcessorPriceID the
	// processor's price, when one already exists.
	PriceInternalID  string
	ProcessorPriceID string

	Description string
	Quantity    decimal.Decimal
	Amount      decimal.Decimal
	Currency    string
}

// SubscriptionAction tells the processor to create, update or cancel the
// subscription backing a customer product.
type SubscriptionAction struct {
	Type SubscriptionActionType

	SubscriptionID      string
	ProcessorCustomerID string

	Items []LineItem

	TrialEnd *time.Time

	// CancelAtPeriodEnd soft-cancels instead of ending immediately.
	CancelAtPeriodEnd bool

	ProrationBehavior types.ProrationPolicy

	// IdempotencyKey makes retries of this money-moving call safe.
	IdempotencyKey string
}

// ScheduleActionType enumerates subscription schedule actions.
type ScheduleActionType string

const (
	ScheduleActionCreate  ScheduleActionType = "create"
	ScheduleActionRelease ScheduleActionType = "release"
	ScheduleActionCancel  ScheduleActionType = "cancel"
)

// ScheduleAction tells the processor to stage a phase change at the
// current period boundary.
type ScheduleAction struct {
	Type ScheduleActionType

	ScheduleID     string
	SubscriptionID string

	PhaseStart time.Time
	Items      []LineItem

	IdempotencyKey string
}

// InvoiceActionType enumerates invoice actions.
type InvoiceActionType string

const (
	InvoiceActionCreateItem InvoiceActionType = "create_item"
	InvoiceActionFinalize   InvoiceActionType = "finalize"
	InvoiceActionVoid       InvoiceActionType = "void"
)

// InvoiceAction issues a one-off or proration charge outside the
// subscription cycle.
type InvoiceAction struct {
	Type InvoiceActionType

	ProcessorCustomerID string

	Description string
	Amount      decimal.Decimal
	Currency    string

	IdempotencyKey string
}

// ProcessorActions is the plan's external side. The processor owns money
// movement; these actions are issued before local mutations commit.
type ProcessorActions struct {
	Subscription *SubscriptionAction
	Schedule     *ScheduleAction
	Invoices     []*InvoiceAction
}

// IsEmpty reports whether the plan issues no processor calls.
func (pa *ProcessorActions) IsEmpty() bool {
	return pa.Subscription == nil && pa.Schedule == nil && len(pa.Invoices) == 0
}

// BillingPlan is the resolved outcome of one billing operation: local
// mutations paired with processor actions. Plans are immutable once
// resolved and either execute fully or not at all.
type BillingPlan struct {
	Operation  types.BillingOperation
	CustomerID string

	// Timing is when the change takes effect.
	Timing types.AttachTiming

	// OngoingAction is what happens to the superseded ongoing product.
	OngoingAction types.OngoingAction

	Local     LocalMutations
	Processor ProcessorActions
}
