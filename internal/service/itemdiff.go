package service

import (
	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// itemsAreSame reports whether an existing balance record already matches
// the new entitlement configuration, so the diff can skip it entirely.
func itemsAreSame(prev *customerproduct.CustomerEntitlement, ent *product.Entitlement, newGranted decimal.Decimal) bool {
	if prev.Unlimited != ent.IsUnlimited() {
		return false
	}
	if prev.UsageAllowed != ent.UsageAllowed {
		return false
	}
	if prev.ResetInterval != ent.ResetInterval {
		return false
	}
	if prev.EntityFeatureID != ent.EntityFeatureID {
		return false
	}
	if prev.Unlimited || prev.FeatureType == types.FeatureTypeBoolean {
		return true
	}
	return prev.Granted.Equal(newGranted)
}

// resolveUpdate diffs the ongoing attachment's configuration against the
// target and produces balance deltas plus processor line-item changes.
// Usage is never silently reset; only the allowance portion moves.
func (s *planService) resolveUpdate(
	bc *billingplan.BillingContext,
	target *billingplan.ResolvedProduct,
	ongoing *customerproduct.CustomerProduct,
	plan *billingplan.BillingPlan,
) error {
	plan.Timing = types.AttachTimingImmediate

	prevEnts := customerproduct.EntitlementsForProducts(
		[]*customerproduct.CustomerProduct{ongoing}, bc.CurrentEntitlements)
	prevByFeature := make(map[string]*customerproduct.CustomerEntitlement, len(prevEnts))
	for _, ce := range prevEnts {
		prevByFeature[ce.FeatureID] = ce
	}

	totalDelta := decimal.Zero
	newFeatures := make(map[string]struct{}, len(target.Full.Entitlements))

	for _, ent := range target.Full.Entitlements {
		newFeatures[ent.FeatureID] = struct{}{}

		price := target.Full.PriceForEntitlement(ent.InternalID)
		quantity := target.GetOptionQuantity(ent.FeatureID)
		newGranted := ComputeStartingBalance(ent, price, quantity, s.Logger)

		prev, exists := prevByFeature[ent.FeatureID]
		if !exists {
			ce := s.buildCustomerEntitlement(bc, target, ent, ongoing, nil, false)
			ce.CustomerProductID = ongoing.ID
			plan.Local.InsertEntitlements = append(plan.Local.InsertEntitlements, ce)
			totalDelta = totalDelta.Add(newGranted)
			continue
		}

		if itemsAreSame(prev, ent, newGranted) {
			continue
		}

		updated := *prev
		updated.Unlimited = ent.IsUnlimited()
		updated.UsageAllowed = ent.UsageAllowed
		updated.ResetInterval = ent.ResetInterval

		if !updated.Unlimited && updated.FeatureType != types.FeatureTypeBoolean {
			// Move only the allowance delta; consumed usage stays consumed.
			delta := newGranted.Sub(prev.Granted)
			newBalance := prev.GetBalance().Add(delta)
			updated.Balance = &newBalance
			updated.Granted = newGranted
			totalDelta = totalDelta.Add(delta)
		}
		plan.Local.UpdateEntitlements = append(plan.Local.UpdateEntitlements, &updated)
	}

	// Features dropped from the configuration lose their balance records.
	for _, prev := range prevEnts {
		if _, kept := newFeatures[prev.FeatureID]; kept {
			continue
		}
		plan.Local.DeleteEntitlements = append(plan.Local.DeleteEntitlements, prev.ID)

		// Entity slots belonging to soft-deleted entities are not refunded
		// early; they are marked for removal at the next cycle boundary.
		for entityID := range prev.Entities {
			for _, entity := range bc.Entities {
				if entity.ID == entityID && entity.Deleted {
					plan.Local.InsertReplaceables = append(plan.Local.InsertReplaceables, &customerproduct.Replaceable{
						ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REPLACEABLE),
						CustomerEntitlementID: prev.ID,
						EntityID:              entityID,
						DeleteNextCycle:       true,
						BaseModel:             bc.BaseModel(),
					})
				}
			}
		}
	}

	if plan.Local.IsEmpty() {
		return nil
	}

	// Processor side reflects only the delta, with the caller's proration
	// policy for the direction the total moved.
	policy := bc.Proration.OnIncrease
	if totalDelta.IsNegative() {
		policy = bc.Proration.OnDecrease
	}

	if ongoing.SubscriptionID != "" && !ongoing.Free {
		items, _ := buildLineItems(target)
		plan.Processor.Subscription = &billingplan.SubscriptionAction{
			Type:              billingplan.SubscriptionActionUpdate,
			SubscriptionID:    ongoing.SubscriptionID,
			Items:             items,
			ProrationBehavior: policy,
			IdempotencyKey:    types.GenerateUUIDWithPrefix("idem"),
		}
	}
	return nil
}
