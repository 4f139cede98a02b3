package testutil

import (
	"context"

	"github.com/entbill/entbill/internal/domain/customerproduct"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryCustomerProductStore implements customerproduct.Repository
type InMemoryCustomerProductStore struct {
	products     *InMemoryStore[*customerproduct.CustomerProduct]
	entitlements *InMemoryStore[*customerproduct.CustomerEntitlement]
	prices       *InMemoryStore[*customerproduct.CustomerPrice]
	replaceables *InMemoryStore[*customerproduct.Replaceable]
}

// NewInMemoryCustomerProductStore creates a new in-memory customer product store
func NewInMemoryCustomerProductStore() *InMemoryCustomerProductStore {
	return &InMemoryCustomerProductStore{
		products:     NewInMemoryStore[*customerproduct.CustomerProduct](),
		entitlements: NewInMemoryStore[*customerproduct.CustomerEntitlement](),
		prices:       NewInMemoryStore[*customerproduct.CustomerPrice](),
		replaceables: NewInMemoryStore[*customerproduct.Replaceable](),
	}
}

func copyCustomerProduct(cp *customerproduct.CustomerProduct) *customerproduct.CustomerProduct {
	if cp == nil {
		return nil
	}
	out := *cp
	out.Options = append([]customerproduct.FeatureOption(nil), cp.Options...)
	if cp.NormalizedAmount != nil {
		amount := *cp.NormalizedAmount
		out.NormalizedAmount = &amount
	}
	return &out
}

func copyCustomerEntitlement(ce *customerproduct.CustomerEntitlement) *customerproduct.CustomerEntitlement {
	if ce == nil {
		return nil
	}
	out := *ce
	if ce.Balance != nil {
		balance := *ce.Balance
		out.Balance = &balance
	}
	if ce.Entities != nil {
		out.Entities = make(map[string]*customerproduct.EntityBalance, len(ce.Entities))
		for id, slot := range ce.Entities {
			s := *slot
			out.Entities[id] = &s
		}
	}
	return &out
}

func (s *InMemoryCustomerProductStore) Create(ctx context.Context, cp *customerproduct.CustomerProduct) error {
	return s.products.Create(ctx, cp.ID, copyCustomerProduct(cp))
}

func (s *InMemoryCustomerProductStore) Get(ctx context.Context, id string) (*customerproduct.CustomerProduct, error) {
	cp, err := s.products.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, cp.BaseModel) {
		return nil, ierr.NewError("customer product not found").
			WithReportableDetails(map[string]any{"customer_product_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyCustomerProduct(cp), nil
}

func (s *InMemoryCustomerProductStore) ListByCustomer(ctx context.Context, customerID string) ([]*customerproduct.CustomerProduct, error) {
	return s.list(ctx, customerID, func(cp *customerproduct.CustomerProduct) bool {
		return lo.Contains(types.RelevantCustomerProductStatuses, cp.ProductStatus)
	})
}

func (s *InMemoryCustomerProductStore) ListAllByCustomer(ctx context.Context, customerID string) ([]*customerproduct.CustomerProduct, error) {
	return s.list(ctx, customerID, func(*customerproduct.CustomerProduct) bool { return true })
}

func (s *InMemoryCustomerProductStore) list(ctx context.Context, customerID string, match func(*customerproduct.CustomerProduct) bool) ([]*customerproduct.CustomerProduct, error) {
	filterFn := func(ctx context.Context, cp *customerproduct.CustomerProduct, _ interface{}) bool {
		return cp.CustomerID == customerID && CheckTenantFilter(ctx, cp.BaseModel) && match(cp)
	}
	sortFn := func(i, j *customerproduct.CustomerProduct) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	cps, err := s.products.List(ctx, nil, filterFn, sortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(cps, func(cp *customerproduct.CustomerProduct, _ int) *customerproduct.CustomerProduct {
		return copyCustomerProduct(cp)
	}), nil
}

func (s *InMemoryCustomerProductStore) Update(ctx context.Context, cp *customerproduct.CustomerProduct) error {
	existing, err := s.products.Get(ctx, cp.ID)
	if err != nil {
		return ierr.NewError("customer product not found").
			WithReportableDetails(map[string]any{"customer_product_id": cp.ID}).
			Mark(ierr.ErrNotFound)
	}
	if existing.ResourceVersion != cp.ResourceVersion {
		return ierr.NewError("customer product was modified concurrently").
			WithHint("Reload the customer product and retry the operation").
			WithReportableDetails(map[string]any{
				"customer_product_id": cp.ID,
				"resource_version":    cp.ResourceVersion,
			}).
			Mark(ierr.ErrVersionConflict)
	}
	updated := copyCustomerProduct(cp)
	updated.ResourceVersion++
	if err := s.products.Update(ctx, cp.ID, updated); err != nil {
		return err
	}
	cp.ResourceVersion++
	return nil
}

func (s *InMemoryCustomerProductStore) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return ierr.NewError("customer product not found").
			WithReportableDetails(map[string]any{"customer_product_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryCustomerProductStore) CreateEntitlement(ctx context.Context, ce *customerproduct.CustomerEntitlement) error {
	return s.entitlements.Create(ctx, ce.ID, copyCustomerEntitlement(ce))
}

func (s *InMemoryCustomerProductStore) GetEntitlement(ctx context.Context, id string) (*customerproduct.CustomerEntitlement, error) {
	ce, err := s.entitlements.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, ce.BaseModel) {
		return nil, ierr.NewError("customer entitlement not found").
			WithReportableDetails(map[string]any{"customer_entitlement_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyCustomerEntitlement(ce), nil
}

func (s *InMemoryCustomerProductStore) ListEntitlementsByCustomer(ctx context.Context, customerID string) ([]*customerproduct.CustomerEntitlement, error) {
	return s.listEntitlements(ctx, func(ce *customerproduct.CustomerEntitlement) bool {
		return ce.CustomerID == customerID
	})
}

func (s *InMemoryCustomerProductStore) ListEntitlementsByProduct(ctx context.Context, customerProductID string) ([]*customerproduct.CustomerEntitlement, error) {
	return s.listEntitlements(ctx, func(ce *customerproduct.CustomerEntitlement) bool {
		return ce.CustomerProductID == customerProductID
	})
}

func (s *InMemoryCustomerProductStore) listEntitlements(ctx context.Context, match func(*customerproduct.CustomerEntitlement) bool) ([]*customerproduct.CustomerEntitlement, error) {
	filterFn := func(ctx context.Context, ce *customerproduct.CustomerEntitlement, _ interface{}) bool {
		return match(ce) && CheckTenantFilter(ctx, ce.BaseModel)
	}
	sortFn := func(i, j *customerproduct.CustomerEntitlement) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	ents, err := s.entitlements.List(ctx, nil, filterFn, sortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(ents, func(ce *customerproduct.CustomerEntitlement, _ int) *customerproduct.CustomerEntitlement {
		return copyCustomerEntitlement(ce)
	}), nil
}

func (s *InMemoryCustomerProductStore) UpdateEntitlement(ctx context.Context, ce *customerproduct.CustomerEntitlement) error {
	if err := s.entitlements.Update(ctx, ce.ID, copyCustomerEntitlement(ce)); err != nil {
		return ierr.NewError("customer entitlement not found").
			WithReportableDetails(map[string]any{"customer_entitlement_id": ce.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryCustomerProductStore) DeleteEntitlement(ctx context.Context, id string) error {
	return s.entitlements.Delete(ctx, id)
}

func (s *InMemoryCustomerProductStore) CreateCustomerPrice(ctx context.Context, cprice *customerproduct.CustomerPrice) error {
	cp := *cprice
	return s.prices.Create(ctx, cprice.ID, &cp)
}

func (s *InMemoryCustomerProductStore) ListCustomerPrices(ctx context.Context, customerProductID string) ([]*customerproduct.CustomerPrice, error) {
	filterFn := func(ctx context.Context, cprice *customerproduct.CustomerPrice, _ interface{}) bool {
		return cprice.CustomerProductID == customerProductID && CheckTenantFilter(ctx, cprice.BaseModel)
	}
	sortFn := func(i, j *customerproduct.CustomerPrice) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	return s.prices.List(ctx, nil, filterFn, sortFn)
}

func (s *InMemoryCustomerProductStore) DeleteCustomerPrice(ctx context.Context, id string) error {
	return s.prices.Delete(ctx, id)
}

func (s *InMemoryCustomerProductStore) CreateReplaceable(ctx context.Context, r *customerproduct.Replaceable) error {
	rep := *r
	return s.replaceables.Create(ctx, r.ID, &rep)
}

func (s *InMemoryCustomerProductStore) ListReplaceables(ctx context.Context, customerEntitlementID string) ([]*customerproduct.Replaceable, error) {
	filterFn := func(ctx context.Context, r *customerproduct.Replaceable, _ interface{}) bool {
		return r.CustomerEntitlementID == customerEntitlementID && CheckTenantFilter(ctx, r.BaseModel)
	}
	sortFn := func(i, j *customerproduct.Replaceable) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	return s.replaceables.List(ctx, nil, filterFn, sortFn)
}

func (s *InMemoryCustomerProductStore) DeleteReplaceable(ctx context.Context, id string) error {
	return s.replaceables.Delete(ctx, id)
}

func (s *InMemoryCustomerProductStore) Clear() {
	s.products.Clear()
	s.entitlements.Clear()
	s.prices.Clear()
	s.replaceables.Clear()
}
