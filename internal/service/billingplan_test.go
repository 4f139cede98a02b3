package service

import (
	"testing"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/testutil"
	"github.com/entbill/entbill/internal/types"
	"github.com/stretchr/testify/suite"
)

type PlanServiceSuite struct {
	testutil.BaseServiceTestSuite
	contextSvc ContextService
	planSvc    PlanService
}

func TestPlanService(t *testing.T) {
	suite.Run(t, new(PlanServiceSuite))
}

func (s *PlanServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := testParams(&s.BaseServiceTestSuite)
	s.contextSvc = NewContextService(params)
	s.planSvc = NewPlanService(params)
}

// seedCatalog registers the free, pro and premium products in the "plan"
// group, all granting feat_api with growing allowances.
func (s *PlanServiceSuite) seedCatalog() {
	ctx := s.GetContext()
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_free_1",
			ID:         "prod_free",
			Name:       "Free",
			Version:    1,
			Group:      "plan",
			IsDefault:  true,
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Entitlements: []*product.Entitlement{
			meteredEntitlement(ctx, "item_free_api", "prodrow_free_1", "feat_api", 100),
		},
	})
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_pro_1",
			ID:         "prod_pro",
			Name:       "Pro",
			Version:    1,
			Group:      "plan",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Entitlements: []*product.Entitlement{
			meteredEntitlement(ctx, "item_pro_api", "prodrow_pro_1", "feat_api", 1000),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_pro_flat", "prodrow_pro_1", 20),
		},
	})
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_premium_1",
			ID:         "prod_premium",
			Name:       "Premium",
			Version:    1,
			Group:      "plan",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Entitlements: []*product.Entitlement{
			meteredEntitlement(ctx, "item_premium_api", "prodrow_premium_1", "feat_api", 2000),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_premium_flat", "prodrow_premium_1", 30),
		},
	})
}

// seedOngoing attaches an active main product backed by the given
// subscription and registers the subscription snapshot with the gateway.
func (s *PlanServiceSuite) seedOngoing(id, productID string, amount int64, subscriptionID string, periodEnd time.Time) *customerproduct.CustomerProduct {
	ctx := s.GetContext()
	cp := &customerproduct.CustomerProduct{
		ID:               id,
		CustomerID:       "cus_1",
		ProductID:        productID,
		ProductVersion:   1,
		ProductGroup:     "plan",
		ProductStatus:    types.CustomerProductStatusActive,
		ProcessorType:    types.ProcessorTypeStripe,
		SubscriptionID:   subscriptionID,
		StartsAt:         s.GetNow().AddDate(0, 0, -10),
		NormalizedAmount: decPtr(amount),
		NormalizedRank:   types.BillingIntervalMonth.Rank(),
		BaseModel:        baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}
	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, cp))
	if subscriptionID != "" {
		s.GetGateway().SeedSubscription(&billingplan.ProcessorSubscription{
			ID:                 subscriptionID,
			Status:             "active",
			CurrentPeriodStart: s.GetNow().AddDate(0, 0, -10),
			CurrentPeriodEnd:   periodEnd,
		})
	}
	return cp
}

func (s *PlanServiceSuite) resolve(req *BillingRequest) (*billingplan.BillingPlan, error) {
	bc, err := s.contextSvc.BuildContext(s.GetContext(), req)
	if err != nil {
		return nil, err
	}
	return s.planSvc.ResolvePlan(s.GetContext(), bc)
}

func (s *PlanServiceSuite) TestFreshAttach() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)

	s.Equal(types.AttachTimingImmediate, plan.Timing)
	s.Equal(types.OngoingActionNone, plan.OngoingAction)
	s.Empty(plan.Local.UpdateCustomerProducts)

	s.Require().Len(plan.Local.InsertCustomerProducts, 1)
	cp := plan.Local.InsertCustomerProducts[0]
	s.Equal(types.CustomerProductStatusActive, cp.ProductStatus)
	s.Equal("prod_pro", cp.ProductID)
	s.Equal("plan", cp.ProductGroup)
	s.False(cp.Free)
	s.False(cp.OneOff)
	s.Require().NotNil(cp.NormalizedAmount)
	s.True(cp.NormalizedAmount.Equal(dec(20)))
	s.Equal(types.BillingIntervalMonth.Rank(), cp.NormalizedRank)

	s.Require().Len(plan.Local.InsertEntitlements, 1)
	ce := plan.Local.InsertEntitlements[0]
	s.Equal(cp.ID, ce.CustomerProductID)
	s.Equal("feat_api", ce.FeatureID)
	s.Require().NotNil(ce.Balance)
	s.True(ce.Balance.Equal(dec(1000)))
	s.True(ce.Granted.Equal(dec(1000)))
	s.Require().NotNil(ce.NextResetAt)
	s.True(ce.NextResetAt.Equal(cp.StartsAt.AddDate(0, 1, 0)))

	s.Require().Len(plan.Local.InsertCustomerPrices, 1)
	s.Equal("price_pro_flat", plan.Local.InsertCustomerPrices[0].PriceInternalID)

	s.Require().NotNil(plan.Processor.Subscription)
	s.Equal(billingplan.SubscriptionActionCreate, plan.Processor.Subscription.Type)
	s.Require().Len(plan.Processor.Subscription.Items, 1)
	s.True(plan.Processor.Subscription.Items[0].Amount.Equal(dec(20)))
	s.Equal("Pro (v1)", plan.Processor.Subscription.Items[0].Description)
	s.NotEmpty(plan.Processor.Subscription.IdempotencyKey)
}

func (s *PlanServiceSuite) TestAttachFreeProduct() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_free"}},
	})
	s.Require().NoError(err)

	s.Require().Len(plan.Local.InsertCustomerProducts, 1)
	s.True(plan.Local.InsertCustomerProducts[0].Free)
	s.True(plan.Processor.IsEmpty())
}

func (s *PlanServiceSuite) TestUpgradeIsImmediate() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	ongoing := s.seedOngoing("cusprod_pro", "prod_pro", 20, "sub_1", periodEnd)

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_premium"}},
	})
	s.Require().NoError(err)

	s.Equal(types.AttachTimingImmediate, plan.Timing)
	s.Equal(types.OngoingActionExpire, plan.OngoingAction)

	s.Require().Len(plan.Local.UpdateCustomerProducts, 1)
	expired := plan.Local.UpdateCustomerProducts[0]
	s.Equal(ongoing.ID, expired.ID)
	s.Equal(types.CustomerProductStatusExpired, expired.ProductStatus)
	s.Require().NotNil(expired.EndedAt)

	s.Require().Len(plan.Local.InsertCustomerProducts, 1)
	s.Equal(types.CustomerProductStatusActive, plan.Local.InsertCustomerProducts[0].ProductStatus)

	// The existing subscription is updated in place, prorating the upgrade.
	s.Require().NotNil(plan.Processor.Subscription)
	s.Equal(billingplan.SubscriptionActionUpdate, plan.Processor.Subscription.Type)
	s.Equal("sub_1", plan.Processor.Subscription.SubscriptionID)
	s.Equal(types.ProrationPolicyProrateImmediately, plan.Processor.Subscription.ProrationBehavior)
}

func (s *PlanServiceSuite) TestDowngradeIsScheduled() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	ongoing := s.seedOngoing("cusprod_premium", "prod_premium", 30, "sub_1", periodEnd)

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)

	s.Equal(types.AttachTimingScheduled, plan.Timing)
	s.Equal(types.OngoingActionCancel, plan.OngoingAction)

	s.Require().Len(plan.Local.UpdateCustomerProducts, 1)
	canceling := plan.Local.UpdateCustomerProducts[0]
	s.Equal(ongoing.ID, canceling.ID)
	s.Equal(types.CustomerProductStatusActive, canceling.ProductStatus)
	s.Require().NotNil(canceling.CanceledAt)

	s.Require().Len(plan.Local.InsertCustomerProducts, 1)
	scheduled := plan.Local.InsertCustomerProducts[0]
	s.Equal(types.CustomerProductStatusScheduled, scheduled.ProductStatus)
	// The downgrade activates when the already-paid period ends.
	s.True(scheduled.StartsAt.Equal(periodEnd))

	s.Nil(plan.Processor.Subscription)
	s.Require().NotNil(plan.Processor.Schedule)
	s.Equal(billingplan.ScheduleActionCreate, plan.Processor.Schedule.Type)
	s.Equal("sub_1", plan.Processor.Schedule.SubscriptionID)
	s.True(plan.Processor.Schedule.PhaseStart.Equal(periodEnd))
}

func (s *PlanServiceSuite) TestUpgradeSupersedesPendingSchedule() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	s.seedOngoing("cusprod_pro", "prod_pro", 20, "sub_1", periodEnd)

	// A previously scheduled downgrade is pending in the same group.
	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, &customerproduct.CustomerProduct{
		ID:            "cusprod_sched",
		CustomerID:    "cus_1",
		ProductID:     "prod_free",
		ProductGroup:  "plan",
		ProductStatus: types.CustomerProductStatusScheduled,
		ScheduleID:    "sched_old",
		StartsAt:      periodEnd,
		BaseModel:     baseModelAt(ctx, s.GetNow().Add(-time.Minute)),
	}))
	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateEntitlement(ctx, &customerproduct.CustomerEntitlement{
		ID:                "cusitem_sched",
		CustomerProductID: "cusprod_sched",
		CustomerID:        "cus_1",
		FeatureID:         "feat_api",
		FeatureType:       types.FeatureTypeMetered,
		Balance:           decPtr(100),
		Granted:           dec(100),
		ResetInterval:     types.ResetIntervalMonth,
		BaseModel:         baseModelAt(ctx, s.GetNow().Add(-time.Minute)),
	}))

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_premium"}},
	})
	s.Require().NoError(err)

	s.Equal(types.AttachTimingImmediate, plan.Timing)
	s.Contains(plan.Local.DeleteCustomerProducts, "cusprod_sched")
	s.Contains(plan.Local.DeleteEntitlements, "cusitem_sched")

	s.Require().NotNil(plan.Processor.Schedule)
	s.Equal(billingplan.ScheduleActionCancel, plan.Processor.Schedule.Type)
	s.Equal("sched_old", plan.Processor.Schedule.ScheduleID)
}

func (s *PlanServiceSuite) TestCarryUsageOnUpgrade() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	ongoing := s.seedOngoing("cusprod_pro", "prod_pro", 20, "sub_1", periodEnd)

	// 400 of the previous 500 allowance was consumed.
	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateEntitlement(ctx, &customerproduct.CustomerEntitlement{
		ID:                "cusitem_prev",
		CustomerProductID: ongoing.ID,
		CustomerID:        "cus_1",
		FeatureID:         "feat_api",
		FeatureType:       types.FeatureTypeMetered,
		Balance:           decPtr(100),
		Granted:           dec(500),
		ResetInterval:     types.ResetIntervalMonth,
		BaseModel:         baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}))

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_premium"}},
		CarryUsage: true,
	})
	s.Require().NoError(err)

	s.Require().Len(plan.Local.InsertEntitlements, 1)
	ce := plan.Local.InsertEntitlements[0]
	// The fresh 2000 allowance is reduced by the 400 already consumed.
	s.Require().NotNil(ce.Balance)
	s.True(ce.Balance.Equal(dec(1600)))
	s.True(ce.Granted.Equal(dec(2000)))
}

func (s *PlanServiceSuite) TestCarryUsageSkipsReplaceableUnits() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	ongoing := s.seedOngoing("cusprod_pro", "prod_pro", 20, "sub_1", periodEnd)

	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateEntitlement(ctx, &customerproduct.CustomerEntitlement{
		ID:                "cusitem_prev",
		CustomerProductID: ongoing.ID,
		CustomerID:        "cus_1",
		FeatureID:         "feat_api",
		FeatureType:       types.FeatureTypeMetered,
		Balance:           decPtr(100),
		Granted:           dec(500),
		ResetInterval:     types.ResetIntervalMonth,
		BaseModel:         baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}))
	// One unit of the previous allowance is reserved by a pending
	// replaceable; it was never consumed and must not be carried as usage.
	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateReplaceable(ctx, &customerproduct.Replaceable{
		ID:                    "rep_1",
		CustomerEntitlementID: "cusitem_prev",
		EntityID:              "ent_gone",
		DeleteNextCycle:       true,
		BaseModel:             baseModelAt(ctx, s.GetNow().Add(-time.Minute)),
	}))

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_premium"}},
		CarryUsage: true,
	})
	s.Require().NoError(err)

	s.Require().Len(plan.Local.InsertEntitlements, 1)
	ce := plan.Local.InsertEntitlements[0]
	// Usage carried is 500-100-1: the reserved unit stays out of it.
	s.Require().NotNil(ce.Balance)
	s.True(ce.Balance.Equal(dec(1601)))
	s.True(ce.Granted.Equal(dec(2000)))
}

func (s *PlanServiceSuite) TestCarryUsagePerEntitySlot() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	periodEnd := s.GetNow().AddDate(0, 0, 20)

	seatScoped := func(internalID, productInternalID string, allowance int64) *product.Entitlement {
		e := meteredEntitlement(ctx, internalID, productInternalID, "feat_storage", allowance)
		e.EntityFeatureID = "feat_seats"
		return e
	}
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_team_1",
			ID:         "prod_team",
			Name:       "Team",
			Version:    1,
			Group:      "plan",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Entitlements: []*product.Entitlement{
			seatScoped("item_team_storage", "prodrow_team_1", 100),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_team_flat", "prodrow_team_1", 20),
		},
	})
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_teamplus_1",
			ID:         "prod_team_plus",
			Name:       "Team Plus",
			Version:    1,
			Group:      "plan",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Entitlements: []*product.Entitlement{
			seatScoped("item_teamplus_storage", "prodrow_teamplus_1", 200),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_teamplus_flat", "prodrow_teamplus_1", 30),
		},
	})

	for _, id := range []string{"ent_a", "ent_b"} {
		s.Require().NoError(s.GetStores().CustomerRepo.CreateEntity(ctx, &customer.Entity{
			ID:         id,
			CustomerID: "cus_1",
			FeatureID:  "feat_seats",
			BaseModel:  baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
		}))
	}

	ongoing := s.seedOngoing("cusprod_team", "prod_team", 20, "sub_1", periodEnd)
	// ent_a consumed 60 of its 100 slot allowance; ent_b consumed nothing.
	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateEntitlement(ctx, &customerproduct.CustomerEntitlement{
		ID:                "cusitem_prev",
		CustomerProductID: ongoing.ID,
		CustomerID:        "cus_1",
		FeatureID:         "feat_storage",
		FeatureType:       types.FeatureTypeMetered,
		EntityFeatureID:   "feat_seats",
		Granted:           dec(200),
		Entities: map[string]*customerproduct.EntityBalance{
			"ent_a": {Balance: dec(40)},
			"ent_b": {Balance: dec(100)},
		},
		ResetInterval: types.ResetIntervalMonth,
		BaseModel:     baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}))

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_team_plus"}},
		CarryUsage: true,
	})
	s.Require().NoError(err)

	s.Require().Len(plan.Local.InsertEntitlements, 1)
	ce := plan.Local.InsertEntitlements[0]
	s.Require().Len(ce.Entities, 2)
	// Each slot carries only its own usage: ent_a 200-60, ent_b untouched.
	s.True(ce.Entities["ent_a"].Balance.Equal(dec(140)))
	s.True(ce.Entities["ent_b"].Balance.Equal(dec(200)))
	// The grant stays the full per-slot allowance times the slot count.
	s.True(ce.Granted.Equal(dec(400)))
}

func (s *PlanServiceSuite) TestMissingNormalizedAmountResolvesImmediate() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)

	// A paid attachment without its amount snapshot compares as zero.
	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, &customerproduct.CustomerProduct{
		ID:             "cusprod_legacy",
		CustomerID:     "cus_1",
		ProductID:      "prod_premium",
		ProductVersion: 1,
		ProductGroup:   "plan",
		ProductStatus:  types.CustomerProductStatusActive,
		ProcessorType:  types.ProcessorTypeStripe,
		SubscriptionID: "sub_1",
		StartsAt:       s.GetNow().AddDate(0, 0, -10),
		BaseModel:      baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}))
	s.GetGateway().SeedSubscription(&billingplan.ProcessorSubscription{
		ID:                 "sub_1",
		Status:             "active",
		CurrentPeriodStart: s.GetNow().AddDate(0, 0, -10),
		CurrentPeriodEnd:   periodEnd,
	})

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)

	s.Equal(types.AttachTimingImmediate, plan.Timing)
	s.Equal(types.OngoingActionExpire, plan.OngoingAction)
}

func (s *PlanServiceSuite) TestCancel() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	ongoing := s.seedOngoing("cusprod_pro", "prod_pro", 20, "sub_1", periodEnd)

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationCancel,
		CustomerID: "cus_1",
	})
	s.Require().NoError(err)

	s.Equal(types.OngoingActionCancel, plan.OngoingAction)
	s.Require().Len(plan.Local.UpdateCustomerProducts, 1)
	s.Equal(ongoing.ID, plan.Local.UpdateCustomerProducts[0].ID)
	s.Require().NotNil(plan.Local.UpdateCustomerProducts[0].CanceledAt)

	s.Require().NotNil(plan.Processor.Subscription)
	s.Equal(billingplan.SubscriptionActionCancel, plan.Processor.Subscription.Type)
	s.Equal("sub_1", plan.Processor.Subscription.SubscriptionID)
	s.True(plan.Processor.Subscription.CancelAtPeriodEnd)
}

func (s *PlanServiceSuite) TestCancelWithoutActiveProduct() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")

	_, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationCancel,
		CustomerID: "cus_1",
	})
	s.True(ierr.Is(err, ierr.ErrNotFound))
}

func (s *PlanServiceSuite) TestCancelNamedProductNotHeld() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedCatalog()
	periodEnd := s.GetNow().AddDate(0, 0, 20)
	s.seedOngoing("cusprod_premium", "prod_premium", 30, "sub_1", periodEnd)

	_, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationCancel,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.True(ierr.Is(err, ierr.ErrNotFound))
}
