package product

import (
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Product is a named, versioned plan definition. Versions are immutable
// once customers are attached; a new version is a separate row sharing the
// same ID with a higher Version.
type Product struct {
	// InternalID is the unique row identifier.
	InternalID string `db:"internal_id" json:"internal_id" gorm:"primaryKey"`

	// ID is the stable identifier shared across versions.
	ID string `db:"id" json:"id"`

	Name string `db:"name" json:"name"`

	Version int `db:"version" json:"version"`

	// Group names a mutually exclusive product family. A customer holds at
	// most one ongoing main product per group (and entity).
	Group string `db:"group" json:"group" gorm:"column:product_group"`

	// IsAddOn products attach alongside a main product and never compete
	// with it for the group slot.
	IsAddOn bool `db:"is_add_on" json:"is_add_on"`

	// IsDefault products are attached automatically when a customer's main
	// product in the group expires or is canceled.
	IsDefault bool `db:"is_default" json:"is_default"`

	types.BaseModel
}

func (Product) TableName() string {
	return "products"
}

// Entitlement is a feature grant on a product.
type Entitlement struct {
	InternalID string `db:"internal_id" json:"internal_id" gorm:"primaryKey"`

	ProductInternalID string `db:"product_internal_id" json:"product_internal_id"`

	FeatureID string `db:"feature_id" json:"feature_id"`

	FeatureType types.FeatureType `db:"feature_type" json:"feature_type"`

	AllowanceType types.AllowanceType `db:"allowance_type" json:"allowance_type"`

	// Allowance is the granted amount per reset cycle; nil for boolean and
	// unlimited entitlements.
	Allowance *decimal.Decimal `db:"allowance" json:"allowance,omitempty"`

	ResetInterval types.ResetInterval `db:"reset_interval" json:"reset_interval"`

	// UsageAllowed permits consuming past zero into negative balance, billed
	// in arrears.
	UsageAllowed bool `db:"usage_allowed" json:"usage_allowed"`

	// CarryFromPrevious subtracts the superseded product's consumed usage
	// from this entitlement's starting balance on upgrade.
	CarryFromPrevious bool `db:"carry_from_previous" json:"carry_from_previous"`

	// EntityFeatureID, when set, tracks this entitlement's balance per
	// sub-entity of that feature instead of one top-level balance.
	EntityFeatureID string `db:"entity_feature_id" json:"entity_feature_id,omitempty"`

	// RolloverMax bounds how much unused allowance carries into the next
	// cycle; nil disables rollover.
	RolloverMax *decimal.Decimal `db:"rollover_max" json:"rollover_max,omitempty"`

	types.BaseModel
}

func (Entitlement) TableName() string {
	return "entitlements"
}

// IsUnlimited reports whether this entitlement grants an unbounded balance.
func (e *Entitlement) IsUnlimited() bool {
	return e.AllowanceType == types.AllowanceTypeUnlimited
}

// IsBoolean reports whether this entitlement is an on/off capability.
func (e *Entitlement) IsBoolean() bool {
	return e.FeatureType == types.FeatureTypeBoolean
}

// GetAllowance returns the allowance, defaulting nil to zero.
func (e *Entitlement) GetAllowance() decimal.Decimal {
	if e.Allowance == nil {
		return decimal.Zero
	}
	return *e.Allowance
}

// UsageModel distinguishes how a usage price bills.
type UsageModel string

const (
	// UsageModelPrepaid purchases quantity in advance.
	UsageModelPrepaid UsageModel = "prepaid"
	// UsageModelPayPerUse bills consumed usage in arrears.
	UsageModelPayPerUse UsageModel = "pay_per_use"
)

// Price is a billing term on a product.
type Price struct {
	InternalID string `db:"internal_id" json:"internal_id" gorm:"primaryKey"`

	ProductInternalID string `db:"product_internal_id" json:"product_internal_id"`

	// EntitlementInternalID links a usage price to the entitlement it
	// bills; empty for fixed prices.
	EntitlementInternalID string `db:"entitlement_internal_id" json:"entitlement_internal_id,omitempty"`

	Type types.PriceType `db:"type" json:"type"`

	// UsageModel is set only for usage prices.
	UsageModel UsageModel `db:"usage_model" json:"usage_model,omitempty"`

	// Amount is the flat amount for fixed prices and the per-billing-unit
	// amount for untiered usage prices.
	Amount decimal.Decimal `db:"amount" json:"amount"`

	Currency string `db:"currency" json:"currency"`

	BillingInterval types.BillingInterval `db:"billing_interval" json:"billing_interval"`

	// BillingUnits is the pack size a prepaid quantity is purchased in.
	// A requested quantity is rounded up to a whole number of packs.
	BillingUnits decimal.Decimal `db:"billing_units" json:"billing_units"`

	// Tiers holds graduated usage pricing; empty means untiered.
	Tiers []PriceTier `db:"tiers" json:"tiers,omitempty" gorm:"serializer:json"`

	// ProcessorPriceID is the payment processor's id for this price, set
	// lazily on first use.
	ProcessorPriceID string `db:"processor_price_id" json:"processor_price_id,omitempty"`

	types.BaseModel
}

func (Price) TableName() string {
	return "prices"
}

type PriceTier struct {
	// UpTo is the inclusive upper usage bound of this tier; nil means
	// unbounded (the last tier).
	UpTo *decimal.Decimal `json:"up_to,omitempty"`

	UnitAmount decimal.Decimal `json:"unit_amount"`
}

// GetBillingType derives the billing behavior from type, model and interval.
func (p *Price) GetBillingType() types.BillingType {
	if p.Type == types.PriceTypeUsage {
		if p.UsageModel == UsageModelPrepaid {
			return types.BillingTypeUsageInAdvance
		}
		return types.BillingTypeUsageInArrear
	}
	if p.BillingInterval == types.BillingIntervalOneOff {
		return types.BillingTypeOneOff
	}
	return types.BillingTypeFlat
}

// IsOneOff reports whether the price charges once and never recurs.
func (p *Price) IsOneOff() bool {
	return p.BillingInterval == types.BillingIntervalOneOff
}

// FirstTierAmount returns the unit amount usage billing starts at.
func (p *Price) FirstTierAmount() decimal.Decimal {
	if len(p.Tiers) > 0 {
		return p.Tiers[0].UnitAmount
	}
	return p.Amount
}

// GetBillingUnits returns the pack size, defaulting zero to 1.
func (p *Price) GetBillingUnits() decimal.Decimal {
	if p.BillingUnits.IsZero() {
		return decimal.NewFromInt(1)
	}
	return p.BillingUnits
}

// FreeTrial is an optional trial period on a product.
type FreeTrial struct {
	InternalID string `db:"internal_id" json:"internal_id" gorm:"primaryKey"`

	ProductInternalID string `db:"product_internal_id" json:"product_internal_id"`

	DurationDays int `db:"duration_days" json:"duration_days"`

	// CardRequired requires a payment method on file before the trial
	// starts.
	CardRequired bool `db:"card_required" json:"card_required"`

	// Unique restricts the trial to once per customer fingerprint.
	Unique bool `db:"unique_fingerprint" json:"unique"`

	types.BaseModel
}

func (FreeTrial) TableName() string {
	return "free_trials"
}

// FullProduct is a product with its entitlements, prices and trial
// resolved, the unit the context builder and plan resolver operate on.
type FullProduct struct {
	Product      *Product
	Entitlements []*Entitlement
	Prices       []*Price
	FreeTrial    *FreeTrial
}

// IsFree reports whether the product carries no recurring paid price.
func (fp *FullProduct) IsFree() bool {
	return !lo.ContainsBy(fp.Prices, func(p *Price) bool {
		return !p.IsOneOff() || p.Amount.IsPositive()
	})
}

// HasRecurringPrice reports whether any price recurs.
func (fp *FullProduct) HasRecurringPrice() bool {
	return lo.ContainsBy(fp.Prices, func(p *Price) bool {
		return !p.IsOneOff()
	})
}

// EntitlementForFeature returns the entitlement granting featureID, or nil.
func (fp *FullProduct) EntitlementForFeature(featureID string) *Entitlement {
	for _, e := range fp.Entitlements {
		if e.FeatureID == featureID {
			return e
		}
	}
	return nil
}

// PriceForEntitlement returns the usage price billing the entitlement, or
// nil when the entitlement is not usage-billed.
func (fp *FullProduct) PriceForEntitlement(entitlementInternalID string) *Price {
	for _, p := range fp.Prices {
		if p.EntitlementInternalID == entitlementInternalID {
			return p
		}
	}
	return nil
}
