package customerproduct

import (
	"time"

	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// CustomerProduct is a customer's attachment to one product version.
type CustomerProduct struct {
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	CustomerID string `db:"customer_id" json:"customer_id"`

	ProductInternalID string `db:"product_internal_id" json:"product_internal_id"`

	// ProductID and ProductVersion identify the attached version by its
	// stable id.
	ProductID      string `db:"product_id" json:"product_id"`
	ProductVersion int    `db:"product_version" json:"product_version"`

	// Snapshot of product flags at attach time; the product row may gain
	// new versions afterwards but this attachment keeps its own.
	ProductGroup string `db:"product_group" json:"product_group"`
	IsAddOn      bool   `db:"is_add_on" json:"is_add_on"`
	IsDefault    bool   `db:"is_default" json:"is_default"`
	// OneOff marks an attachment whose prices all charge once.
	OneOff bool `db:"one_off" json:"one_off"`
	// Free marks an attachment with no paid price.
	Free bool `db:"free" json:"free"`

	// InternalEntityID scopes this attachment to one sub-entity, e.g. a
	// seat. Empty means customer-wide.
	InternalEntityID string `db:"internal_entity_id" json:"internal_entity_id,omitempty"`

	ProductStatus types.CustomerProductStatus `db:"product_status" json:"product_status"`

	StartsAt time.Time `db:"starts_at" json:"starts_at"`

	EndedAt *time.Time `db:"ended_at" json:"ended_at,omitempty"`

	// CanceledAt is set on soft cancellation; status stays until the
	// processor confirms period end.
	CanceledAt *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`

	TrialEndsAt *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`

	ProcessorType types.ProcessorType `db:"processor_type" json:"processor_type,omitempty"`

	// SubscriptionID and ScheduleID reference the processor objects backing
	// this attachment.
	SubscriptionID string `db:"subscription_id" json:"subscription_id,omitempty"`
	ScheduleID     string `db:"schedule_id" json:"schedule_id,omitempty"`

	// Options holds prepaid feature quantities chosen at attach time.
	Options []FeatureOption `db:"options" json:"options" gorm:"serializer:json"`

	// NormalizedAmount and NormalizedRank snapshot the product's recurring
	// price total and billing interval rank at attach time, so upgrade and
	// downgrade timing can be decided without reloading the old version.
	NormalizedAmount *decimal.Decimal `db:"normalized_amount" json:"normalized_amount,omitempty"`
	NormalizedRank   int              `db:"normalized_rank" json:"normalized_rank"`

	// ResourceVersion guards concurrent updates; every write increments it.
	ResourceVersion int `db:"resource_version" json:"resource_version"`

	types.BaseModel
}

func (CustomerProduct) TableName() string {
	return "customer_products"
}

// FeatureOption is a chosen prepaid quantity for one feature.
type FeatureOption struct {
	FeatureID string          `json:"feature_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// GetFeatureQuantity returns the chosen quantity for a feature. A missing
// option means the customer holds a single unit.
func (cp *CustomerProduct) GetFeatureQuantity(featureID string) decimal.Decimal {
	for _, opt := range cp.Options {
		if opt.FeatureID == featureID {
			return opt.Quantity
		}
	}
	return decimal.NewFromInt(1)
}

// EntityBalance is one sub-entity's slot of an entity-scoped entitlement.
type EntityBalance struct {
	Balance    decimal.Decimal `json:"balance"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

// CustomerEntitlement is a per-attachment, per-feature balance record.
type CustomerEntitlement struct {
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	CustomerProductID string `db:"customer_product_id" json:"customer_product_id"`

	CustomerID string `db:"customer_id" json:"customer_id"`

	EntitlementInternalID string `db:"entitlement_internal_id" json:"entitlement_internal_id"`

	FeatureID string `db:"feature_id" json:"feature_id"`

	FeatureType types.FeatureType `db:"feature_type" json:"feature_type"`

	// Balance is nil for unlimited and boolean entitlements.
	Balance *decimal.Decimal `db:"balance" json:"balance,omitempty"`

	Adjustment decimal.Decimal `db:"adjustment" json:"adjustment"`

	// Granted is the total granted for the current cycle, allowance plus
	// any prepaid quantity. Usage derives as granted + adjustment - balance.
	Granted decimal.Decimal `db:"granted" json:"granted"`

	// Entities holds per-entity slots when the entitlement is
	// entity-scoped; nil otherwise.
	Entities map[string]*EntityBalance `db:"entities" json:"entities,omitempty" gorm:"serializer:json"`

	Unlimited bool `db:"unlimited" json:"unlimited"`

	UsageAllowed bool `db:"usage_allowed" json:"usage_allowed"`

	ResetInterval types.ResetInterval `db:"reset_interval" json:"reset_interval"`

	// NextResetAt is nil for lifetime entitlements.
	NextResetAt *time.Time `db:"next_reset_at" json:"next_reset_at,omitempty"`

	// EntityFeatureID mirrors the entitlement definition's entity scoping.
	EntityFeatureID string `db:"entity_feature_id" json:"entity_feature_id,omitempty"`

	types.BaseModel
}

func (CustomerEntitlement) TableName() string {
	return "customer_entitlements"
}

// IsEntityScoped reports whether balances are tracked per sub-entity.
func (ce *CustomerEntitlement) IsEntityScoped() bool {
	return ce.EntityFeatureID != ""
}

// GetBalance returns the top-level balance, defaulting nil to zero.
func (ce *CustomerEntitlement) GetBalance() decimal.Decimal {
	if ce.Balance == nil {
		return decimal.Zero
	}
	return *ce.Balance
}

// Usage returns consumed allowance for the current cycle.
func (ce *CustomerEntitlement) Usage() decimal.Decimal {
	return ce.Granted.Add(ce.Adjustment).Sub(ce.GetBalance())
}

// HasActiveResetWindow reports whether a future reset is pending.
func (ce *CustomerEntitlement) HasActiveResetWindow(now time.Time) bool {
	return ce.NextResetAt != nil && ce.NextResetAt.After(now)
}

// CustomerPrice links an attachment to a product price, used to find the
// price that bills a given entitlement.
type CustomerPrice struct {
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	CustomerProductID string `db:"customer_product_id" json:"customer_product_id"`

	CustomerID string `db:"customer_id" json:"customer_id"`

	PriceInternalID string `db:"price_internal_id" json:"price_internal_id"`

	types.BaseModel
}

func (CustomerPrice) TableName() string {
	return "customer_prices"
}

// Replaceable marks a per-entity balance slot pending deletion at the next
// cycle boundary, so a removed entity's allowance is not refunded early.
type Replaceable struct {
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	CustomerEntitlementID string `db:"customer_entitlement_id" json:"customer_entitlement_id"`

	EntityID string `db:"entity_id" json:"entity_id"`

	DeleteNextCycle bool `db:"delete_next_cycle" json:"delete_next_cycle"`

	types.BaseModel
}

func (Replaceable) TableName() string {
	return "replaceables"
}
