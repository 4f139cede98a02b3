package billingplan

import (
	"time"

	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// ProcessorSubscription is a read snapshot of the payment processor's
// subscription object, captured once when the context is built.
type ProcessorSubscription struct {
	ID                 string
	Status             string
	CustomerID         string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// ProcessorPaymentMethod is a read snapshot of the customer's default
// payment method.
type ProcessorPaymentMethod struct {
	ID   string
	Type string
}

// ResolvedProduct is one target product of an operation with its quantities
// and trial fully resolved.
type ResolvedProduct struct {
	Full *product.FullProduct

	// Options carries the caller's prepaid quantities in raw units,
	// already rounded up to whole billing-unit packs.
	Options []customerproduct.FeatureOption

	// TrialEndsAt is the resolved trial end: explicit override wins over
	// the product default; nil means no trial.
	TrialEndsAt *time.Time

	// CarryUsage requests existing-usage carry-over from the superseded
	// product even for entitlements not marked carry_from_previous.
	CarryUsage bool
}

// GetOptionQuantity returns the resolved raw quantity for a feature,
// defaulting a missing option to one unit.
func (rp *ResolvedProduct) GetOptionQuantity(featureID string) decimal.Decimal {
	for _, opt := range rp.Options {
		if opt.FeatureID == featureID {
			return opt.Quantity
		}
	}
	return decimal.NewFromInt(1)
}

// BillingContext is the immutable, fully resolved input of one billing
// operation. Building it never mutates persisted state; Now is pinned once
// so the whole operation is internally time-consistent.
type BillingContext struct {
	Operation types.BillingOperation

	Now time.Time

	Customer *customer.Customer

	Entities []*customer.Entity

	// CurrentProducts holds the customer's relevant attachments in stable
	// created_at order; CurrentEntitlements their balance records.
	CurrentProducts     []*customerproduct.CustomerProduct
	CurrentEntitlements []*customerproduct.CustomerEntitlement

	// CurrentReplaceables holds pending replaceable rows of the current
	// entitlements: entity units removed mid-cycle that stay reserved
	// until the cycle boundary.
	CurrentReplaceables []*customerproduct.Replaceable

	// Products are the operation's targets. Attach and update usually
	// carry one; multi-product attach carries several.
	Products []*ResolvedProduct

	// InternalEntityID scopes the operation to one sub-entity.
	InternalEntityID string

	ProcessorCustomerID string
	Subscription        *ProcessorSubscription
	PaymentMethod       *ProcessorPaymentMethod

	Proration types.ProrationConfig

	// Base carries the tenant and environment scoping captured from the
	// request context when the context was built.
	Base types.BaseModel
}

// BaseModel returns the scoped base model stamped with the context's
// pinned timestamp, for rows the resolved plan inserts.
func (bc *BillingContext) BaseModel() types.BaseModel {
	bm := bc.Base
	bm.CreatedAt = bc.Now
	bm.UpdatedAt = bc.Now
	return bm
}

// CurrentPeriodEnd returns the processor period end, or zero when the
// customer has no backing subscription.
func (bc *BillingContext) CurrentPeriodEnd() time.Time {
	if bc.Subscription == nil {
		return time.Time{}
	}
	return bc.Subscription.CurrentPeriodEnd
}
