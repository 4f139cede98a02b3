package service

import (
	"testing"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/testutil"
	"github.com/entbill/entbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestItemsAreSame(t *testing.T) {
	ent := &product.Entitlement{
		FeatureType:   types.FeatureTypeMetered,
		AllowanceType: types.AllowanceTypeFixed,
		ResetInterval: types.ResetIntervalMonth,
	}
	prev := &customerproduct.CustomerEntitlement{
		FeatureType:   types.FeatureTypeMetered,
		Granted:       dec(1000),
		ResetInterval: types.ResetIntervalMonth,
	}

	assert.True(t, itemsAreSame(prev, ent, dec(1000)))
	assert.False(t, itemsAreSame(prev, ent, dec(2000)))

	differentInterval := *prev
	differentInterval.ResetInterval = types.ResetIntervalDay
	assert.False(t, itemsAreSame(&differentInterval, ent, dec(1000)))

	// Unlimited records compare by configuration only, never by balance.
	unlimitedEnt := &product.Entitlement{
		FeatureType:   types.FeatureTypeMetered,
		AllowanceType: types.AllowanceTypeUnlimited,
		ResetInterval: types.ResetIntervalMonth,
	}
	unlimitedPrev := &customerproduct.CustomerEntitlement{
		FeatureType:   types.FeatureTypeMetered,
		Unlimited:     true,
		ResetInterval: types.ResetIntervalMonth,
	}
	assert.True(t, itemsAreSame(unlimitedPrev, unlimitedEnt, dec(0)))
	assert.False(t, itemsAreSame(prev, unlimitedEnt, dec(1000)))
}

type UpdateDiffSuite struct {
	testutil.BaseServiceTestSuite
	contextSvc ContextService
	planSvc    PlanService
}

func TestUpdateDiff(t *testing.T) {
	suite.Run(t, new(UpdateDiffSuite))
}

func (s *UpdateDiffSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := testParams(&s.BaseServiceTestSuite)
	s.contextSvc = NewContextService(params)
	s.planSvc = NewPlanService(params)
}

// seedProVersions registers pro v1 (1000 api calls) and v2 (2000 api calls
// plus an exports feature).
func (s *UpdateDiffSuite) seedProVersions() {
	ctx := s.GetContext()
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_pro_1",
			ID:         "prod_pro",
			Name:       "Pro",
			Version:    1,
			Group:      "plan",
			BaseModel:  baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
		},
		Entitlements: []*product.Entitlement{
			meteredEntitlement(ctx, "item_pro1_api", "prodrow_pro_1", "feat_api", 1000),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_pro1_flat", "prodrow_pro_1", 20),
		},
	})
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_pro_2",
			ID:         "prod_pro",
			Name:       "Pro",
			Version:    2,
			Group:      "plan",
			BaseModel:  baseModelAt(ctx, s.GetNow()),
		},
		Entitlements: []*product.Entitlement{
			meteredEntitlement(ctx, "item_pro2_api", "prodrow_pro_2", "feat_api", 2000),
			meteredEntitlement(ctx, "item_pro2_exports", "prodrow_pro_2", "feat_exports", 10),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_pro2_flat", "prodrow_pro_2", 25),
		},
	})
}

func (s *UpdateDiffSuite) seedOngoingPro(subscriptionID string) *customerproduct.CustomerProduct {
	ctx := s.GetContext()
	cp := &customerproduct.CustomerProduct{
		ID:               "cusprod_pro",
		CustomerID:       "cus_1",
		ProductID:        "prod_pro",
		ProductVersion:   1,
		ProductGroup:     "plan",
		ProductStatus:    types.CustomerProductStatusActive,
		ProcessorType:    types.ProcessorTypeStripe,
		SubscriptionID:   subscriptionID,
		StartsAt:         s.GetNow().AddDate(0, 0, -10),
		NormalizedAmount: decPtr(20),
		NormalizedRank:   types.BillingIntervalMonth.Rank(),
		BaseModel:        baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}
	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, cp))
	if subscriptionID != "" {
		s.GetGateway().SeedSubscription(&billingplan.ProcessorSubscription{
			ID:               subscriptionID,
			Status:           "active",
			CurrentPeriodEnd: s.GetNow().AddDate(0, 0, 20),
		})
	}
	return cp
}

func (s *UpdateDiffSuite) seedPrevEntitlement(id, featureID string, granted, balance int64) *customerproduct.CustomerEntitlement {
	ctx := s.GetContext()
	ce := &customerproduct.CustomerEntitlement{
		ID:                id,
		CustomerProductID: "cusprod_pro",
		CustomerID:        "cus_1",
		FeatureID:         featureID,
		FeatureType:       types.FeatureTypeMetered,
		Balance:           decPtr(balance),
		Granted:           dec(granted),
		ResetInterval:     types.ResetIntervalMonth,
		BaseModel:         baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}
	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateEntitlement(ctx, ce))
	return ce
}

func (s *UpdateDiffSuite) resolve(req *BillingRequest) (*billingplan.BillingPlan, error) {
	bc, err := s.contextSvc.BuildContext(s.GetContext(), req)
	if err != nil {
		return nil, err
	}
	return s.planSvc.ResolvePlan(s.GetContext(), bc)
}

func (s *UpdateDiffSuite) TestNoChangesIsNoOp() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProVersions()
	s.seedOngoingPro("sub_1")
	s.seedPrevEntitlement("cusitem_api", "feat_api", 1000, 400)

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationUpdate,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro", Version: 1}},
	})
	s.Require().NoError(err)

	s.True(plan.Local.IsEmpty())
	s.True(plan.Processor.IsEmpty())
	s.Equal(types.OngoingActionNone, plan.OngoingAction)
}

func (s *UpdateDiffSuite) TestAllowanceIncreaseMovesDeltaOnly() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProVersions()
	s.seedOngoingPro("sub_1")
	s.seedPrevEntitlement("cusitem_api", "feat_api", 1000, 400)

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationUpdate,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)

	s.Require().Len(plan.Local.UpdateEntitlements, 1)
	updated := plan.Local.UpdateEntitlements[0]
	s.Equal("cusitem_api", updated.ID)
	s.True(updated.Granted.Equal(dec(2000)))
	// 600 of the old allowance was consumed and stays consumed.
	s.Require().NotNil(updated.Balance)
	s.True(updated.Balance.Equal(dec(1400)))

	// The new exports feature attaches to the existing customer product.
	s.Require().Len(plan.Local.InsertEntitlements, 1)
	inserted := plan.Local.InsertEntitlements[0]
	s.Equal("feat_exports", inserted.FeatureID)
	s.Equal("cusprod_pro", inserted.CustomerProductID)
	s.True(inserted.Granted.Equal(dec(10)))

	s.Require().NotNil(plan.Processor.Subscription)
	s.Equal(billingplan.SubscriptionActionUpdate, plan.Processor.Subscription.Type)
	s.Equal("sub_1", plan.Processor.Subscription.SubscriptionID)
	s.Equal(types.ProrationPolicyProrateImmediately, plan.Processor.Subscription.ProrationBehavior)
}

func (s *UpdateDiffSuite) TestAllowanceDecreaseDefersProration() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProVersions()
	s.seedOngoingPro("sub_1")
	// The previous configuration granted more than v1 does.
	s.seedPrevEntitlement("cusitem_api", "feat_api", 2000, 1500)

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationUpdate,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro", Version: 1}},
	})
	s.Require().NoError(err)

	s.Require().Len(plan.Local.UpdateEntitlements, 1)
	updated := plan.Local.UpdateEntitlements[0]
	s.True(updated.Granted.Equal(dec(1000)))
	s.Require().NotNil(updated.Balance)
	s.True(updated.Balance.Equal(dec(500)))

	s.Require().NotNil(plan.Processor.Subscription)
	s.Equal(types.ProrationPolicyNextCycle, plan.Processor.Subscription.ProrationBehavior)
}

func (s *UpdateDiffSuite) TestDroppedFeatureKeepsDeletedEntitySlots() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProVersions()
	s.seedOngoingPro("")
	s.seedPrevEntitlement("cusitem_api", "feat_api", 1000, 400)

	s.Require().NoError(s.GetStores().CustomerRepo.CreateEntity(ctx, &customer.Entity{
		ID:         "ent_gone",
		CustomerID: "cus_1",
		FeatureID:  "feat_seats",
		Deleted:    true,
		BaseModel:  baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}))
	dropped := &customerproduct.CustomerEntitlement{
		ID:                "cusitem_dropped",
		CustomerProductID: "cusprod_pro",
		CustomerID:        "cus_1",
		FeatureID:         "feat_legacy",
		FeatureType:       types.FeatureTypeMetered,
		Granted:           dec(50),
		EntityFeatureID:   "feat_seats",
		Entities: map[string]*customerproduct.EntityBalance{
			"ent_gone": {Balance: dec(50)},
		},
		ResetInterval: types.ResetIntervalMonth,
		BaseModel:     baseModelAt(ctx, s.GetNow().Add(-time.Hour)),
	}
	s.Require().NoError(s.GetStores().CustomerProductRepo.CreateEntitlement(ctx, dropped))

	plan, err := s.resolve(&BillingRequest{
		Operation:  types.BillingOperationUpdate,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)

	s.Contains(plan.Local.DeleteEntitlements, "cusitem_dropped")
	s.Require().Len(plan.Local.InsertReplaceables, 1)
	rep := plan.Local.InsertReplaceables[0]
	s.Equal("cusitem_dropped", rep.CustomerEntitlementID)
	s.Equal("ent_gone", rep.EntityID)
	s.True(rep.DeleteNextCycle)

	// Without a backing subscription there is nothing to tell the processor.
	s.Nil(plan.Processor.Subscription)
}
