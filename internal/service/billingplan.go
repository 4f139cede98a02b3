package service

import (
	"context"
	"fmt"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// PlanService resolves a billing context into one billing plan. Resolution
// is sequential and deterministic given its inputs; it never mutates
// persisted state.
type PlanService interface {
	ResolvePlan(ctx context.Context, bc *billingplan.BillingContext) (*billingplan.BillingPlan, error)
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{ServiceParams: params}
}

func (s *planService) ResolvePlan(ctx context.Context, bc *billingplan.BillingContext) (*billingplan.BillingPlan, error) {
	plan := &billingplan.BillingPlan{
		Operation:     bc.Operation,
		CustomerID:    bc.Customer.ID,
		Timing:        types.AttachTimingImmediate,
		OngoingAction: types.OngoingActionNone,
	}

	switch bc.Operation {
	case types.BillingOperationCancel:
		if err := s.resolveCancel(bc, plan); err != nil {
			return nil, err
		}
	case types.BillingOperationAttach, types.BillingOperationUpdate:
		for _, target := range bc.Products {
			if err := s.resolveTarget(bc, target, plan); err != nil {
				return nil, err
			}
		}
	default:
		return nil, ierr.NewErrorf("unsupported billing operation %s", bc.Operation).
			Mark(ierr.ErrInvalidOperation)
	}

	s.Logger.Infow("resolved billing plan",
		"customer_id", plan.CustomerID,
		"operation", plan.Operation,
		"timing", plan.Timing,
		"ongoing_action", plan.OngoingAction,
		"local_inserts", len(plan.Local.InsertCustomerProducts),
		"processor_actions", !plan.Processor.IsEmpty())
	return plan, nil
}

// resolveTarget runs the core attach/update algorithm for one target
// product: timing resolution, ongoing and scheduled product actions, then
// the new attachment with its entitlements and processor side.
func (s *planService) resolveTarget(bc *billingplan.BillingContext, target *billingplan.ResolvedProduct, plan *billingplan.BillingPlan) error {
	group := target.Full.Product.Group
	ongoing, hasOngoing := customerproduct.FindOngoingMain(bc.CurrentProducts, group, bc.InternalEntityID)

	// An update of the already-held product diffs configurations instead
	// of replacing the attachment.
	if bc.Operation == types.BillingOperationUpdate && hasOngoing && ongoing.ProductID == target.Full.Product.ID {
		return s.resolveUpdate(bc, target, ongoing, plan)
	}

	timing := s.resolveTiming(target, ongoing, hasOngoing)
	if !target.Full.Product.IsAddOn {
		plan.Timing = timing
	}

	// Ongoing action. Add-ons never touch the ongoing product; an
	// immediate replacement expires it, a scheduled one soft-cancels so it
	// keeps the remaining paid period.
	if !target.Full.Product.IsAddOn && hasOngoing && ongoing.ProductID != target.Full.Product.ID {
		switch timing {
		case types.AttachTimingImmediate:
			plan.OngoingAction = types.OngoingActionExpire
			expired := *ongoing
			expired.ProductStatus = types.CustomerProductStatusExpired
			endedAt := bc.Now
			expired.EndedAt = &endedAt
			plan.Local.UpdateCustomerProducts = append(plan.Local.UpdateCustomerProducts, &expired)
		case types.AttachTimingScheduled:
			plan.OngoingAction = types.OngoingActionCancel
			canceling := *ongoing
			canceledAt := bc.Now
			canceling.CanceledAt = &canceledAt
			plan.Local.UpdateCustomerProducts = append(plan.Local.UpdateCustomerProducts, &canceling)
		}
	}

	// Scheduled action: a pending schedule in the group is superseded.
	if !target.Full.Product.IsAddOn {
		if scheduled, ok := customerproduct.FindScheduledMain(bc.CurrentProducts, group, bc.InternalEntityID); ok {
			plan.Local.DeleteCustomerProducts = append(plan.Local.DeleteCustomerProducts, scheduled.ID)
			for _, ce := range customerproduct.EntitlementsForProducts(
				[]*customerproduct.CustomerProduct{scheduled}, bc.CurrentEntitlements) {
				plan.Local.DeleteEntitlements = append(plan.Local.DeleteEntitlements, ce.ID)
			}
			if scheduled.ScheduleID != "" {
				plan.Processor.Schedule = &billingplan.ScheduleAction{
					Type:           billingplan.ScheduleActionCancel,
					ScheduleID:     scheduled.ScheduleID,
					IdempotencyKey: types.GenerateUUIDWithPrefix("idem"),
				}
			}
		}
	}

	// New product action.
	cp := s.buildCustomerProduct(bc, target, timing)
	plan.Local.InsertCustomerProducts = append(plan.Local.InsertCustomerProducts, cp)

	for _, ent := range target.Full.Entitlements {
		ce := s.buildCustomerEntitlement(bc, target, ent, cp, ongoing, hasOngoing)
		plan.Local.InsertEntitlements = append(plan.Local.InsertEntitlements, ce)
	}

	for _, price := range target.Full.Prices {
		plan.Local.InsertCustomerPrices = append(plan.Local.InsertCustomerPrices, &customerproduct.CustomerPrice{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER_PRICE),
			CustomerProductID: cp.ID,
			CustomerID:        bc.Customer.ID,
			PriceInternalID:   price.InternalID,
			BaseModel:         bc.BaseModel(),
		})
	}

	return s.resolveProcessorSide(bc, target, cp, ongoing, hasOngoing, timing, plan)
}

// resolveTiming decides when the new product takes effect. Upgrades unlock
// value immediately; downgrades wait for period end so already-paid time is
// not forfeited.
func (s *planService) resolveTiming(target *billingplan.ResolvedProduct, ongoing *customerproduct.CustomerProduct, hasOngoing bool) types.AttachTiming {
	if target.Full.Product.IsAddOn {
		return types.AttachTimingImmediate
	}
	if !hasOngoing || ongoing.ProductID == target.Full.Product.ID {
		return types.AttachTimingImmediate
	}
	if ongoing.Free {
		return types.AttachTimingImmediate
	}

	newAmount, newRank := normalizedRecurringPrice(target.Full)
	oldAmount, oldRank := s.normalizedOngoingPrice(ongoing)

	if newRank != oldRank {
		if newRank > oldRank {
			return types.AttachTimingImmediate
		}
		return types.AttachTimingScheduled
	}
	if newAmount.GreaterThan(oldAmount) {
		return types.AttachTimingImmediate
	}
	return types.AttachTimingScheduled
}

// normalizedRecurringPrice sums a product's recurring price amounts (first
// tier for usage prices, one-off prices ignored) and returns the billing
// interval rank used to compare products on different cadences.
func normalizedRecurringPrice(fp *product.FullProduct) (decimal.Decimal, int) {
	total := decimal.Zero
	rank := 0
	for _, p := range fp.Prices {
		if p.IsOneOff() {
			continue
		}
		total = total.Add(p.FirstTierAmount())
		if r := p.BillingInterval.Rank(); r > rank {
			rank = r
		}
	}
	return total, rank
}

// normalizedOngoingPrice resolves the ongoing attachment's price total from
// the amount snapshotted at attach time; a free attachment normalizes to
// zero. A paid attachment missing its snapshot compares as zero, which
// biases the replacement toward immediate timing.
func (s *planService) normalizedOngoingPrice(ongoing *customerproduct.CustomerProduct) (decimal.Decimal, int) {
	if ongoing.Free {
		return decimal.Zero, 0
	}
	if ongoing.NormalizedAmount != nil {
		return *ongoing.NormalizedAmount, ongoing.NormalizedRank
	}
	s.Logger.Warnw("paid attachment missing normalized amount, comparing as zero",
		"customer_product_id", ongoing.ID,
		"product_id", ongoing.ProductID)
	return decimal.Zero, 0
}

func (s *planService) buildCustomerProduct(bc *billingplan.BillingContext, target *billingplan.ResolvedProduct, timing types.AttachTiming) *customerproduct.CustomerProduct {
	p := target.Full.Product

	status := types.CustomerProductStatusActive
	startsAt := bc.Now
	if timing == types.AttachTimingScheduled {
		status = types.CustomerProductStatusScheduled
		if end := bc.CurrentPeriodEnd(); !end.IsZero() {
			startsAt = end
		}
	} else if target.TrialEndsAt != nil {
		status = types.CustomerProductStatusTrialing
	}

	amount, rank := normalizedRecurringPrice(target.Full)

	cp := &customerproduct.CustomerProduct{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER_PRODUCT),
		CustomerID:        bc.Customer.ID,
		ProductInternalID: p.InternalID,
		ProductID:         p.ID,
		ProductVersion:    p.Version,
		ProductGroup:      p.Group,
		IsAddOn:           p.IsAddOn,
		IsDefault:         p.IsDefault,
		// A product with no prices at all is an evergreen free plan, not a
		// one-off purchase.
		OneOff:            len(target.Full.Prices) > 0 && !target.Full.HasRecurringPrice(),
		Free:              target.Full.IsFree(),
		InternalEntityID:  bc.InternalEntityID,
		ProductStatus:     status,
		StartsAt:          startsAt,
		TrialEndsAt:       target.TrialEndsAt,
		ProcessorType:     types.ProcessorTypeStripe,
		Options:           target.Options,
		NormalizedAmount:  &amount,
		NormalizedRank:    rank,
		BaseModel:         bc.BaseModel(),
	}
	return cp
}

// buildCustomerEntitlement initializes one balance record: starting balance
// from allowance and prepaid quantity, carry-over of existing usage when
// requested, per-entity slots when entity-scoped.
func (s *planService) buildCustomerEntitlement(
	bc *billingplan.BillingContext,
	target *billingplan.ResolvedProduct,
	ent *product.Entitlement,
	cp *customerproduct.CustomerProduct,
	ongoing *customerproduct.CustomerProduct,
	hasOngoing bool,
) *customerproduct.CustomerEntitlement {
	ce := &customerproduct.CustomerEntitlement{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER_ENTITLEMENT),
		CustomerProductID:     cp.ID,
		CustomerID:            bc.Customer.ID,
		EntitlementInternalID: ent.InternalID,
		FeatureID:             ent.FeatureID,
		FeatureType:           ent.FeatureType,
		Unlimited:             ent.IsUnlimited(),
		UsageAllowed:          ent.UsageAllowed,
		ResetInterval:         ent.ResetInterval,
		EntityFeatureID:       ent.EntityFeatureID,
		BaseModel:             bc.BaseModel(),
	}

	if next := ent.ResetInterval.NextReset(cp.StartsAt); !next.IsZero() {
		ce.NextResetAt = &next
	}

	if ce.Unlimited || ce.FeatureType == types.FeatureTypeBoolean {
		return ce
	}

	price := target.Full.PriceForEntitlement(ent.InternalID)
	quantity := target.GetOptionQuantity(ent.FeatureID)
	starting := ComputeStartingBalance(ent, price, quantity, s.Logger)

	var prev *customerproduct.CustomerEntitlement
	if hasOngoing && (ent.CarryFromPrevious || target.CarryUsage) {
		prev = findPreviousEntitlement(bc, ongoing, ent.FeatureID)
	}

	if ent.EntityFeatureID != "" {
		// Carry-over applies per slot; subtracting the aggregate usage from
		// the per-entity allowance would multiply it by the slot count.
		ce.Entities = make(map[string]*customerproduct.EntityBalance)
		for _, entity := range bc.Entities {
			if entity.Deleted || entity.FeatureID != ent.EntityFeatureID {
				continue
			}
			slotBalance := starting
			if prev != nil {
				if prevSlot, ok := prev.Entities[entity.ID]; ok {
					used := ComputeExistingUsage(
						perEntityAllowance(prev),
						prevSlot.Balance.Add(prevSlot.Adjustment),
						decimal.Zero,
					)
					slotBalance = starting.Sub(used)
				}
			}
			ce.Entities[entity.ID] = &customerproduct.EntityBalance{Balance: slotBalance}
		}
		ce.Granted = starting.Mul(decimal.NewFromInt(int64(len(ce.Entities))))
		return ce
	}

	granted := starting

	// Existing-usage carry-over: a mid-cycle replacement must not mint a
	// fresh allowance on top of what was already consumed. Units reserved
	// by pending replaceables never count as consumed.
	if prev != nil {
		resolved := ResolveEntitlementBalance(prev, bc.CurrentReplaceables, "", prev.Granted)
		existingUsage := ComputeExistingUsage(
			prev.Granted,
			resolved.Balance.Add(resolved.Adjustment),
			resolved.Unused,
		)
		starting = starting.Sub(existingUsage)
	}

	ce.Balance = &starting
	ce.Granted = granted
	return ce
}

// perEntityAllowance derives the previous per-slot allowance from the
// aggregate grant.
func perEntityAllowance(prev *customerproduct.CustomerEntitlement) decimal.Decimal {
	n := int64(len(prev.Entities))
	if n == 0 {
		return prev.Granted
	}
	return prev.Granted.Div(decimal.NewFromInt(n))
}

func findPreviousEntitlement(bc *billingplan.BillingContext, ongoing *customerproduct.CustomerProduct, featureID string) *customerproduct.CustomerEntitlement {
	if ongoing == nil {
		return nil
	}
	for _, ce := range bc.CurrentEntitlements {
		if ce.CustomerProductID == ongoing.ID && ce.FeatureID == featureID {
			return ce
		}
	}
	return nil
}

// resolveProcessorSide issues the declarative processor actions matching
// the local mutations. The processor is the source of truth for money
// movement, so these are sequenced before local commits.
func (s *planService) resolveProcessorSide(
	bc *billingplan.BillingContext,
	target *billingplan.ResolvedProduct,
	cp *customerproduct.CustomerProduct,
	ongoing *customerproduct.CustomerProduct,
	hasOngoing bool,
	timing types.AttachTiming,
	plan *billingplan.BillingPlan,
) error {
	items, oneOffItems := buildLineItems(target)

	// One-off prices invoice immediately regardless of timing.
	for _, item := range oneOffItems {
		plan.Processor.Invoices = append(plan.Processor.Invoices, &billingplan.InvoiceAction{
			Type:                billingplan.InvoiceActionCreateItem,
			ProcessorCustomerID: bc.ProcessorCustomerID,
			Description:         item.Description,
			Amount:              item.Amount,
			Currency:            item.Currency,
			IdempotencyKey:      types.GenerateUUIDWithPrefix("idem"),
		})
	}
	if len(oneOffItems) > 0 {
		plan.Processor.Invoices = append(plan.Processor.Invoices, &billingplan.InvoiceAction{
			Type:                billingplan.InvoiceActionFinalize,
			ProcessorCustomerID: bc.ProcessorCustomerID,
			IdempotencyKey:      types.GenerateUUIDWithPrefix("idem"),
		})
	}

	if cp.Free && len(items) == 0 {
		// A free product still expires a paid predecessor's subscription.
		if plan.OngoingAction == types.OngoingActionExpire && hasOngoing && ongoing.SubscriptionID != "" {
			plan.Processor.Subscription = &billingplan.SubscriptionAction{
				Type:           billingplan.SubscriptionActionCancel,
				SubscriptionID: ongoing.SubscriptionID,
				IdempotencyKey: types.GenerateUUIDWithPrefix("idem"),
			}
		}
		return nil
	}

	switch timing {
	case types.AttachTimingImmediate:
		if hasOngoing && ongoing.SubscriptionID != "" && plan.OngoingAction == types.OngoingActionExpire {
			plan.Processor.Subscription = &billingplan.SubscriptionAction{
				Type:              billingplan.SubscriptionActionUpdate,
				SubscriptionID:    ongoing.SubscriptionID,
				Items:             items,
				TrialEnd:          target.TrialEndsAt,
				ProrationBehavior: bc.Proration.OnIncrease,
				IdempotencyKey:    types.GenerateUUIDWithPrefix("idem"),
			}
		} else {
			plan.Processor.Subscription = &billingplan.SubscriptionAction{
				Type:                billingplan.SubscriptionActionCreate,
				ProcessorCustomerID: bc.ProcessorCustomerID,
				Items:               items,
				TrialEnd:            target.TrialEndsAt,
				IdempotencyKey:      types.GenerateUUIDWithPrefix("idem"),
			}
		}
	case types.AttachTimingScheduled:
		subID := ""
		if hasOngoing {
			subID = ongoing.SubscriptionID
		}
		plan.Processor.Schedule = &billingplan.ScheduleAction{
			Type:           billingplan.ScheduleActionCreate,
			SubscriptionID: subID,
			PhaseStart:     cp.StartsAt,
			Items:          items,
			IdempotencyKey: types.GenerateUUIDWithPrefix("idem"),
		}
	}
	return nil
}

// buildLineItems splits a target's prices into recurring subscription
// items and one-off invoice items.
func buildLineItems(target *billingplan.ResolvedProduct) (recurring []billingplan.LineItem, oneOff []billingplan.LineItem) {
	for _, price := range target.Full.Prices {
		item := billingplan.LineItem{
			PriceInternalID:  price.InternalID,
			ProcessorPriceID: price.ProcessorPriceID,
			Description:      fmt.Sprintf("%s (v%d)", target.Full.Product.Name, target.Full.Product.Version),
			Amount:           price.FirstTierAmount(),
			Currency:         price.Currency,
			Quantity:         decimal.NewFromInt(1),
		}

		if price.GetBillingType() == types.BillingTypeUsageInAdvance && price.EntitlementInternalID != "" {
			for _, ent := range target.Full.Entitlements {
				if ent.InternalID != price.EntitlementInternalID {
					continue
				}
				raw := target.GetOptionQuantity(ent.FeatureID)
				item.Quantity = raw.Div(price.GetBillingUnits())
			}
		}

		if price.IsOneOff() {
			oneOff = append(oneOff, item)
		} else {
			recurring = append(recurring, item)
		}
	}
	return recurring, oneOff
}

// resolveCancel soft-cancels the customer's ongoing main products (or the
// named ones) at period end. Status stays until the processor confirms.
func (s *planService) resolveCancel(bc *billingplan.BillingContext, plan *billingplan.BillingPlan) error {
	targets := customerproduct.Filter(bc.CurrentProducts, customerproduct.All(
		customerproduct.IsMain,
		customerproduct.HasActiveStatus,
		customerproduct.OnEntity(bc.InternalEntityID),
	))
	if len(bc.Products) > 0 {
		ids := make(map[string]struct{}, len(bc.Products))
		for _, t := range bc.Products {
			ids[t.Full.Product.ID] = struct{}{}
		}
		targets = customerproduct.Filter(targets, func(cp *customerproduct.CustomerProduct) bool {
			_, ok := ids[cp.ProductID]
			return ok
		})
	}
	if len(targets) == 0 {
		return ierr.NewError("no active product to cancel").
			WithHint("The customer holds no active main product matching the request").
			WithReportableDetails(map[string]any{"customer_id": bc.Customer.ID}).
			Mark(ierr.ErrNotFound)
	}

	plan.OngoingAction = types.OngoingActionCancel
	for _, cp := range targets {
		canceling := *cp
		canceledAt := bc.Now
		canceling.CanceledAt = &canceledAt
		plan.Local.UpdateCustomerProducts = append(plan.Local.UpdateCustomerProducts, &canceling)

		if cp.SubscriptionID != "" && plan.Processor.Subscription == nil {
			plan.Processor.Subscription = &billingplan.SubscriptionAction{
				Type:              billingplan.SubscriptionActionCancel,
				SubscriptionID:    cp.SubscriptionID,
				CancelAtPeriodEnd: true,
				IdempotencyKey:    types.GenerateUUIDWithPrefix("idem"),
			}
		}
	}
	return nil
}
