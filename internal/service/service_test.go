package service

import (
	"context"
	"time"

	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/feature"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/testutil"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

func testParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetCache(),
		stores.CustomerRepo,
		stores.FeatureRepo,
		stores.ProductRepo,
		stores.CustomerProductRepo,
		s.GetGateway(),
	)
}

func baseModelAt(ctx context.Context, at time.Time) types.BaseModel {
	bm := types.GetDefaultBaseModel(ctx)
	bm.CreatedAt = at
	bm.UpdatedAt = at
	return bm
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func decPtr(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

func seedCustomer(s *testutil.BaseServiceTestSuite, id string) *customer.Customer {
	cust := &customer.Customer{
		ID:         id,
		ExternalID: "ext_" + id,
		Name:       "Test Customer",
		Email:      "test@example.com",
		BaseModel:  types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().CustomerRepo.Create(s.GetContext(), cust))
	return cust
}

func seedFeature(s *testutil.BaseServiceTestSuite, id string, featureType types.FeatureType) {
	f := &feature.Feature{
		ID:        id,
		LookupKey: id,
		Name:      id,
		Type:      featureType,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().FeatureRepo.Create(s.GetContext(), f))
}

func seedProduct(s *testutil.BaseServiceTestSuite, full *product.FullProduct) {
	ctx := s.GetContext()
	repo := s.GetStores().ProductRepo
	s.Require().NoError(repo.Create(ctx, full.Product))
	for _, e := range full.Entitlements {
		s.Require().NoError(repo.CreateEntitlement(ctx, e))
	}
	for _, p := range full.Prices {
		s.Require().NoError(repo.CreatePrice(ctx, p))
	}
	if full.FreeTrial != nil {
		s.Require().NoError(repo.CreateFreeTrial(ctx, full.FreeTrial))
	}
}

// meteredEntitlement builds a monthly metered entitlement fixture.
func meteredEntitlement(ctx context.Context, internalID, productInternalID, featureID string, allowance int64) *product.Entitlement {
	return &product.Entitlement{
		InternalID:        internalID,
		ProductInternalID: productInternalID,
		FeatureID:         featureID,
		FeatureType:       types.FeatureTypeMetered,
		AllowanceType:     types.AllowanceTypeFixed,
		Allowance:         decPtr(allowance),
		ResetInterval:     types.ResetIntervalMonth,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
}

// flatMonthlyPrice builds a fixed monthly price fixture.
func flatMonthlyPrice(ctx context.Context, internalID, productInternalID string, amount int64) *product.Price {
	return &product.Price{
		InternalID:        internalID,
		ProductInternalID: productInternalID,
		Type:              types.PriceTypeFixed,
		Amount:            dec(amount),
		Currency:          "usd",
		BillingInterval:   types.BillingIntervalMonth,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
}

// prepaidPrice builds a usage-in-advance price billing the given entitlement
// in packs of the given size.
func prepaidPrice(ctx context.Context, internalID, productInternalID, entitlementInternalID string, unitAmount, billingUnits int64) *product.Price {
	return &product.Price{
		InternalID:            internalID,
		ProductInternalID:     productInternalID,
		EntitlementInternalID: entitlementInternalID,
		Type:                  types.PriceTypeUsage,
		UsageModel:            product.UsageModelPrepaid,
		Amount:                dec(unitAmount),
		Currency:              "usd",
		BillingInterval:       types.BillingIntervalMonth,
		BillingUnits:          dec(billingUnits),
		BaseModel:             types.GetDefaultBaseModel(ctx),
	}
}
