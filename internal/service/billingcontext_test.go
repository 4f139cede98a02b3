package service

import (
	"testing"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/testutil"
	"github.com/entbill/entbill/internal/types"
	"github.com/stretchr/testify/suite"
)

type ContextServiceSuite struct {
	testutil.BaseServiceTestSuite
	service ContextService
}

func TestContextService(t *testing.T) {
	suite.Run(t, new(ContextServiceSuite))
}

func (s *ContextServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewContextService(testParams(&s.BaseServiceTestSuite))
}

func (s *ContextServiceSuite) seedProProduct() {
	ctx := s.GetContext()
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
			meteredEntitlement(ctx, "item_api", "prodrow_pro_1", "feat_api", 1000),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_flat", "prodrow_pro_1", 20),
		},
	})
}

func (s *ContextServiceSuite) TestValidation() {
	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.True(ierr.IsValidation(err))

	_, err = s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
	})
	s.True(ierr.IsValidation(err))

	// Cancel needs no target product.
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	bc, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationCancel,
		CustomerID: "cus_1",
	})
	s.Require().NoError(err)
	s.Empty(bc.Products)
}

func (s *ContextServiceSuite) TestDuplicateProductRejected() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{
			{ProductID: "prod_pro"},
			{ProductID: "prod_pro"},
		},
	})
	s.True(ierr.IsValidation(err))
}

func (s *ContextServiceSuite) TestTwoMainProductsInGroupRejected() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_premium_1",
			ID:         "prod_premium",
			Name:       "Premium",
			Version:    1,
			Group:      "plan",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_premium_flat", "prodrow_premium_1", 30),
		},
	})

	_, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{
			{ProductID: "prod_pro"},
			{ProductID: "prod_premium"},
		},
	})
	s.True(ierr.IsValidation(err))

	// An add-on in the same group rides along with a main product.
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_addon_1",
			ID:         "prod_addon",
			Name:       "Add-on",
			Version:    1,
			Group:      "plan",
			IsAddOn:    true,
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_addon_flat", "prodrow_addon_1", 5),
		},
	})
	_, err = s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{
			{ProductID: "prod_pro"},
			{ProductID: "prod_addon"},
		},
	})
	s.NoError(err)
}

func (s *ContextServiceSuite) TestCustomerNotFound() {
	s.seedProProduct()
	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_missing",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.True(ierr.IsNotFound(err))
	s.True(ierr.Is(err, ierr.ErrCustomerNotFound))
}

func (s *ContextServiceSuite) TestProductNotFound() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_missing"}},
	})
	s.True(ierr.Is(err, ierr.ErrProductNotFound))
}

func (s *ContextServiceSuite) TestBuildContextBasics() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	bc, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)

	s.Equal("cus_1", bc.Customer.ID)
	s.Require().Len(bc.Products, 1)
	s.Equal("prod_pro", bc.Products[0].Full.Product.ID)
	s.WithinDuration(time.Now().UTC(), bc.Now, 5*time.Second)
	s.Equal(types.DefaultTenantID, bc.Base.TenantID)
	s.Equal(types.DefaultProrationConfig(), bc.Proration)
}

func (s *ContextServiceSuite) TestQuantityCeilingDivision() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	seedFeature(&s.BaseServiceTestSuite, "feat_api", types.FeatureTypeMetered)
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
			meteredEntitlement(ctx, "item_api", "prodrow_pro_1", "feat_api", 1000),
		},
		Prices: []*product.Price{
			prepaidPrice(ctx, "price_prepaid", "prodrow_pro_1", "item_api", 10, 100),
		},
	})

	bc, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{{
			ProductID: "prod_pro",
			FeatureQuantities: []FeatureQuantityRequest{
				{FeatureID: "feat_api", Quantity: dec(150)},
			},
		}},
	})
	s.Require().NoError(err)

	// 150 units at a pack size of 100 purchases two packs.
	s.Require().Len(bc.Products[0].Options, 1)
	s.True(bc.Products[0].Options[0].Quantity.Equal(dec(200)))
}

func (s *ContextServiceSuite) TestQuantityFeatureNotFound() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{{
			ProductID: "prod_pro",
			FeatureQuantities: []FeatureQuantityRequest{
				{FeatureID: "feat_unknown", Quantity: dec(100)},
			},
		}},
	})
	s.True(ierr.Is(err, ierr.ErrFeatureNotFound))
}

func (s *ContextServiceSuite) TestQuantityFeatureNotEntitled() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	seedFeature(&s.BaseServiceTestSuite, "feat_other", types.FeatureTypeMetered)
	s.seedProProduct()

	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{{
			ProductID: "prod_pro",
			FeatureQuantities: []FeatureQuantityRequest{
				{FeatureID: "feat_other", Quantity: dec(100)},
			},
		}},
	})
	s.True(ierr.IsValidation(err))
}

func (s *ContextServiceSuite) TestQuantityRequiresPrepaidPrice() {
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	seedFeature(&s.BaseServiceTestSuite, "feat_api", types.FeatureTypeMetered)
	// The pro product bills feat_api through a flat price only.
	s.seedProProduct()

	_, err := s.service.BuildContext(s.GetContext(), &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products: []ProductRequest{{
			ProductID: "prod_pro",
			FeatureQuantities: []FeatureQuantityRequest{
				{FeatureID: "feat_api", Quantity: dec(100)},
			},
		}},
	})
	s.True(ierr.IsValidation(err))
}

func (s *ContextServiceSuite) TestTrialEndPrecedence() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	seedProduct(&s.BaseServiceTestSuite, &product.FullProduct{
		Product: &product.Product{
			InternalID: "prodrow_pro_1",
			ID:         "prod_pro",
			Name:       "Pro",
			Version:    1,
			Group:      "plan",
			BaseModel:  types.GetDefaultBaseModel(ctx),
		},
		Prices: []*product.Price{
			flatMonthlyPrice(ctx, "price_flat", "prodrow_pro_1", 20),
		},
		FreeTrial: &product.FreeTrial{
			InternalID:        "trial_1",
			ProductInternalID: "prodrow_pro_1",
			DurationDays:      14,
			BaseModel:         types.GetDefaultBaseModel(ctx),
		},
	})

	// Product default applies when no override is given.
	bc, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)
	s.Require().NotNil(bc.Products[0].TrialEndsAt)
	s.WithinDuration(bc.Now.AddDate(0, 0, 14), *bc.Products[0].TrialEndsAt, time.Second)

	// An explicit override wins over the product default.
	override := time.Now().UTC().AddDate(0, 0, 3)
	bc, err = s.service.BuildContext(ctx, &BillingRequest{
		Operation:   types.BillingOperationAttach,
		CustomerID:  "cus_1",
		Products:    []ProductRequest{{ProductID: "prod_pro"}},
		TrialEndsAt: &override,
	})
	s.Require().NoError(err)
	s.Require().NotNil(bc.Products[0].TrialEndsAt)
	s.True(bc.Products[0].TrialEndsAt.Equal(override))
}

func (s *ContextServiceSuite) TestProcessorConflict() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, &customerproduct.CustomerProduct{
		ID:            "cusprod_1",
		CustomerID:    "cus_1",
		ProductID:     "prod_other",
		ProductGroup:  "plan",
		ProductStatus: types.CustomerProductStatusActive,
		ProcessorType: types.ProcessorType("paddle"),
		BaseModel:     baseModelAt(ctx, s.GetNow()),
	}))

	_, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.True(ierr.IsConflict(err))
}

func (s *ContextServiceSuite) TestUniquenessViolation() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	for i, id := range []string{"cusprod_1", "cusprod_2"} {
		s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, &customerproduct.CustomerProduct{
			ID:            id,
			CustomerID:    "cus_1",
			ProductID:     "prod_other",
			ProductGroup:  "plan",
			ProductStatus: types.CustomerProductStatusActive,
			ProcessorType: types.ProcessorTypeStripe,
			BaseModel:     baseModelAt(ctx, s.GetNow().Add(time.Duration(i)*time.Second)),
		}))
	}

	_, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.True(ierr.IsConflict(err))
}

func (s *ContextServiceSuite) TestOrphanScheduleRejected() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, &customerproduct.CustomerProduct{
		ID:            "cusprod_sched",
		CustomerID:    "cus_1",
		ProductID:     "prod_other",
		ProductGroup:  "plan",
		ProductStatus: types.CustomerProductStatusScheduled,
		BaseModel:     baseModelAt(ctx, s.GetNow()),
	}))

	_, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.True(ierr.IsConflict(err))
}

func (s *ContextServiceSuite) TestSubscriptionSnapshot() {
	ctx := s.GetContext()
	seedCustomer(&s.BaseServiceTestSuite, "cus_1")
	s.seedProProduct()

	periodEnd := s.GetNow().AddDate(0, 1, 0)
	s.GetGateway().SeedSubscription(&billingplan.ProcessorSubscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: periodEnd,
	})
	s.Require().NoError(s.GetStores().CustomerProductRepo.Create(ctx, &customerproduct.CustomerProduct{
		ID:               "cusprod_1",
		CustomerID:       "cus_1",
		ProductID:        "prod_other",
		ProductGroup:     "plan",
		ProductStatus:    types.CustomerProductStatusActive,
		ProcessorType:    types.ProcessorTypeStripe,
		SubscriptionID:   "sub_1",
		NormalizedAmount: decPtr(10),
		NormalizedRank:   types.BillingIntervalMonth.Rank(),
		BaseModel:        baseModelAt(ctx, s.GetNow()),
	}))

	bc, err := s.service.BuildContext(ctx, &BillingRequest{
		Operation:  types.BillingOperationAttach,
		CustomerID: "cus_1",
		Products:   []ProductRequest{{ProductID: "prod_pro"}},
	})
	s.Require().NoError(err)
	s.Require().NotNil(bc.Subscription)
	s.Equal("sub_1", bc.Subscription.ID)
	s.True(bc.CurrentPeriodEnd().Equal(periodEnd))
}
