package service

import (
	"context"
	"sort"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// ResolvedBalance is the effective balance of one customer entitlement.
type ResolvedBalance struct {
	Balance    decimal.Decimal
	Adjustment decimal.Decimal
	// Count is the number of entity slots contributing to the balance; 1
	// for non-entity-scoped entitlements.
	Count int
	// Unused counts allowance units reserved by pending replaceable rows:
	// entities removed mid-cycle whose paid-for units stay held until the
	// cycle boundary. Kept aside so carry-over never treats them as
	// consumed and refunds them twice.
	Unused decimal.Decimal
}

// FeatureBalance is the per-feature aggregation returned to callers. A nil
// Balance means unlimited; callers must never display or decrement a raw
// unlimited counter.
type FeatureBalance struct {
	FeatureID    string           `json:"feature_id"`
	Balance      *decimal.Decimal `json:"balance"`
	Unlimited    bool             `json:"unlimited"`
	UsageAllowed bool             `json:"usage_allowed"`
	NextResetAt  *time.Time       `json:"next_reset_at,omitempty"`
}

// DeductionItem pairs a customer entitlement with its owning product for
// deduction ordering.
type DeductionItem struct {
	Entitlement *customerproduct.CustomerEntitlement
	Product     *customerproduct.CustomerProduct
}

type BalanceService interface {
	// GetCustomerBalances aggregates the customer's entitlements into one
	// balance per feature, optionally scoped to one entity.
	GetCustomerBalances(ctx context.Context, customerID string, entityID string) ([]*FeatureBalance, error)

	// BuildProjection computes the customer's cacheable read model from
	// durable state.
	BuildProjection(ctx context.Context, customerID string) (*billingplan.CustomerProjection, error)
}

type balanceService struct {
	ServiceParams
}

func NewBalanceService(params ServiceParams) BalanceService {
	return &balanceService{ServiceParams: params}
}

// ResolveEntitlementBalance computes the effective balance of one customer
// entitlement. Pure over its inputs; runs on hot read paths and never
// fails.
//   - Entity-scoped with no requested entity: sum all slots.
//   - Entity-scoped with a requested entity: that slot only, defaulting a
//     missing slot to the reset allowance.
//   - Otherwise the top-level balance, with unused counting one unit per
//     pending replaceable row of this entitlement.
func ResolveEntitlementBalance(
	ce *customerproduct.CustomerEntitlement,
	replaceables []*customerproduct.Replaceable,
	requestedEntityID string,
	resetAllowance decimal.Decimal,
) *ResolvedBalance {
	if ce.IsEntityScoped() {
		if requestedEntityID != "" {
			if slot, ok := ce.Entities[requestedEntityID]; ok {
				return &ResolvedBalance{
					Balance:    slot.Balance,
					Adjustment: slot.Adjustment,
					Count:      1,
				}
			}
			// No slot yet for this entity; it holds a fresh allowance.
			return &ResolvedBalance{Balance: resetAllowance, Count: 1}
		}

		resolved := &ResolvedBalance{}
		for _, slot := range ce.Entities {
			resolved.Balance = resolved.Balance.Add(slot.Balance)
			resolved.Adjustment = resolved.Adjustment.Add(slot.Adjustment)
			resolved.Count++
		}
		return resolved
	}

	unused := decimal.Zero
	for _, r := range replaceables {
		if r.CustomerEntitlementID == ce.ID {
			unused = unused.Add(decimal.NewFromInt(1))
		}
	}

	return &ResolvedBalance{
		Balance:    ce.GetBalance(),
		Adjustment: ce.Adjustment,
		Count:      1,
		Unused:     unused,
	}
}

// SortForDeduction orders entitlements granting the same feature before
// usage is deducted. Ascending tie-break order: boolean type first, credit
// system last, unlimited before finite, without usage_allowed first,
// active reset window first, finer reset interval first, main product
// before add-on, oldest first. Reverse flips the reset-window and interval
// comparisons for refund and rollback paths. The sort is stable.
func SortForDeduction(items []*DeductionItem, now time.Time, reverse bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		ae, be := a.Entitlement, b.Entitlement

		if c := compareBool(ae.FeatureType == types.FeatureTypeBoolean, be.FeatureType == types.FeatureTypeBoolean); c != 0 {
			return c < 0
		}
		if c := compareBool(be.FeatureType == types.FeatureTypeCreditSystem, ae.FeatureType == types.FeatureTypeCreditSystem); c != 0 {
			return c < 0
		}
		if c := compareBool(ae.Unlimited, be.Unlimited); c != 0 {
			return c < 0
		}
		if c := compareBool(!ae.UsageAllowed, !be.UsageAllowed); c != 0 {
			return c < 0
		}
		if c := compareBool(ae.HasActiveResetWindow(now), be.HasActiveResetWindow(now)); c != 0 {
			if reverse {
				return c > 0
			}
			return c < 0
		}
		if ar, br := ae.ResetInterval.Rank(), be.ResetInterval.Rank(); ar != br {
			if reverse {
				return ar > br
			}
			return ar < br
		}
		if a.Product != nil && b.Product != nil {
			if c := compareBool(!a.Product.IsAddOn, !b.Product.IsAddOn); c != 0 {
				return c < 0
			}
		}
		return ae.CreatedAt.Before(be.CreatedAt)
	})
}

// compareBool sorts true before false.
func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return -1
	}
	return 1
}

// ComputeStartingBalance returns the granted balance for a fresh cycle:
// allowance times quantity, or allowance plus the purchased raw quantity
// for prepaid prices. Missing price or options data falls back to the base
// allowance with a log line, never an error, because this also runs on hot
// read paths.
func ComputeStartingBalance(
	ent *product.Entitlement,
	price *product.Price,
	quantity decimal.Decimal,
	log *logger.Logger,
) decimal.Decimal {
	allowance := ent.GetAllowance()

	if price != nil && price.GetBillingType() == types.BillingTypeUsageInAdvance {
		if quantity.IsNegative() {
			log.Warnw("negative prepaid quantity, falling back to base allowance",
				"entitlement_internal_id", ent.InternalID,
				"feature_id", ent.FeatureID,
				"quantity", quantity)
			return allowance
		}
		return allowance.Add(quantity)
	}

	if price == nil && ent.EntityFeatureID == "" && !quantity.Equal(decimal.NewFromInt(1)) {
		// A non-default quantity without a price to bill it means options
		// data is incomplete; grant the safe base allowance.
		log.Warnw("missing price for quantity-bearing entitlement, falling back to base allowance",
			"entitlement_internal_id", ent.InternalID,
			"feature_id", ent.FeatureID,
			"quantity", quantity)
		return allowance
	}

	return allowance.Mul(quantity)
}

// ComputeExistingUsage derives how much of the previous entitlement's
// allowance was consumed, excluding units reserved by pending
// replaceables. The carry-over subtracts this from the successor's
// starting balance so a mid-cycle upgrade cannot mint free usage.
func ComputeExistingUsage(previousAllowance, previousBalance, previousUnused decimal.Decimal) decimal.Decimal {
	return previousAllowance.Sub(previousBalance).Sub(previousUnused)
}

func (s *balanceService) GetCustomerBalances(ctx context.Context, customerID string, entityID string) ([]*FeatureBalance, error) {
	if _, err := s.CustomerRepo.Get(ctx, customerID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Customer not found").
			WithReportableDetails(map[string]any{"customer_id": customerID}).
			Mark(ierr.ErrCustomerNotFound)
	}

	ents, err := s.CustomerProductRepo.ListEntitlementsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	byFeature := make(map[string]*FeatureBalance)
	var order []string

	for _, ce := range ents {
		fb, ok := byFeature[ce.FeatureID]
		if !ok {
			fb = &FeatureBalance{FeatureID: ce.FeatureID}
			byFeature[ce.FeatureID] = fb
			order = append(order, ce.FeatureID)
		}

		fb.UsageAllowed = fb.UsageAllowed || ce.UsageAllowed

		// Unlimited short-circuits aggregation to unbounded.
		if ce.Unlimited {
			fb.Unlimited = true
			fb.Balance = nil
			continue
		}
		if fb.Unlimited {
			continue
		}

		replaceables, err := s.CustomerProductRepo.ListReplaceables(ctx, ce.ID)
		if err != nil {
			return nil, err
		}
		resolved := ResolveEntitlementBalance(ce, replaceables, entityID, ce.Granted)
		total := resolved.Balance.Add(resolved.Adjustment)
		if fb.Balance == nil {
			fb.Balance = &total
		} else {
			sum := fb.Balance.Add(total)
			fb.Balance = &sum
		}

		if ce.NextResetAt != nil && (fb.NextResetAt == nil || ce.NextResetAt.Before(*fb.NextResetAt)) {
			fb.NextResetAt = ce.NextResetAt
		}
	}

	balances := make([]*FeatureBalance, 0, len(order))
	for _, featureID := range order {
		balances = append(balances, byFeature[featureID])
	}
	return balances, nil
}

func (s *balanceService) BuildProjection(ctx context.Context, customerID string) (*billingplan.CustomerProjection, error) {
	cps, err := s.CustomerProductRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	ents, err := s.CustomerProductRepo.ListEntitlementsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	projection := &billingplan.CustomerProjection{
		CustomerID:     customerID,
		Plans:          make(map[string]billingplan.PlanProjection),
		ScheduledPlans: make(map[string]billingplan.PlanProjection),
		Features:       make(map[string]billingplan.FeatureProjection),
		ComputedAt:     time.Now().UTC(),
	}

	for _, cp := range cps {
		entry := billingplan.PlanProjection{
			SubscriptionID: cp.SubscriptionID,
			ScheduleID:     cp.ScheduleID,
		}
		if customerproduct.IsScheduled(cp) {
			projection.ScheduledPlans[cp.ProductID] = entry
		} else if customerproduct.HasActiveStatus(cp) {
			projection.Plans[cp.ProductID] = entry
		}
	}

	for _, ce := range ents {
		if ce.Unlimited || ce.FeatureType == types.FeatureTypeBoolean {
			continue
		}
		fp := projection.Features[ce.FeatureID]
		fp.GrantedBalance = fp.GrantedBalance.Add(ce.Granted)
		fp.Usage = fp.Usage.Add(ce.Usage())
		projection.Features[ce.FeatureID] = fp
	}

	return projection, nil
}
