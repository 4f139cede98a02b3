package testutil

import (
	"context"

	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryProductStore implements product.Repository
type InMemoryProductStore struct {
	products     *InMemoryStore[*product.Product]
	entitlements *InMemoryStore[*product.Entitlement]
	prices       *InMemoryStore[*product.Price]
	trials       *InMemoryStore[*product.FreeTrial]
}

// NewInMemoryProductStore creates a new in-memory product store
func NewInMemoryProductStore() *InMemoryProductStore {
	return &InMemoryProductStore{
		products:     NewInMemoryStore[*product.Product](),
		entitlements: NewInMemoryStore[*product.Entitlement](),
		prices:       NewInMemoryStore[*product.Price](),
		trials:       NewInMemoryStore[*product.FreeTrial](),
	}
}

func copyProduct(p *product.Product) *product.Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func copyProductEntitlement(e *product.Entitlement) *product.Entitlement {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Allowance != nil {
		allowance := *e.Allowance
		cp.Allowance = &allowance
	}
	return &cp
}

func copyPrice(p *product.Price) *product.Price {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Tiers = append([]product.PriceTier(nil), p.Tiers...)
	return &cp
}

func (s *InMemoryProductStore) Create(ctx context.Context, p *product.Product) error {
	return s.products.Create(ctx, p.InternalID, copyProduct(p))
}

func (s *InMemoryProductStore) Get(ctx context.Context, internalID string) (*product.Product, error) {
	p, err := s.products.Get(ctx, internalID)
	if err != nil || !CheckTenantFilter(ctx, p.BaseModel) || p.Status == types.StatusDeleted {
		return nil, ierr.NewError("product not found").
			WithReportableDetails(map[string]any{"internal_id": internalID}).
			Mark(ierr.ErrProductNotFound)
	}
	return copyProduct(p), nil
}

func (s *InMemoryProductStore) GetByIDAndVersion(ctx context.Context, id string, version int) (*product.Product, error) {
	filterFn := func(ctx context.Context, p *product.Product, _ interface{}) bool {
		if p.ID != id || !CheckTenantFilter(ctx, p.BaseModel) || p.Status == types.StatusDeleted {
			return false
		}
		return version == 0 || p.Version == version
	}
	sortFn := func(i, j *product.Product) bool {
		return i.Version > j.Version
	}
	products, err := s.products.List(ctx, nil, filterFn, sortFn)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ierr.NewError("product not found").
			WithReportableDetails(map[string]any{
				"product_id": id,
				"version":    version,
			}).
			Mark(ierr.ErrProductNotFound)
	}
	return copyProduct(products[0]), nil
}

func (s *InMemoryProductStore) GetFull(ctx context.Context, internalID string) (*product.FullProduct, error) {
	p, err := s.Get(ctx, internalID)
	if err != nil {
		return nil, err
	}
	return s.loadFull(ctx, p)
}

func (s *InMemoryProductStore) GetFullByIDAndVersion(ctx context.Context, id string, version int) (*product.FullProduct, error) {
	p, err := s.GetByIDAndVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}
	return s.loadFull(ctx, p)
}

func (s *InMemoryProductStore) loadFull(ctx context.Context, p *product.Product) (*product.FullProduct, error) {
	full := &product.FullProduct{Product: p}

	ents, err := s.entitlements.List(ctx, nil,
		func(ctx context.Context, e *product.Entitlement, _ interface{}) bool {
			return e.ProductInternalID == p.InternalID && e.Status != types.StatusDeleted
		},
		func(i, j *product.Entitlement) bool { return i.CreatedAt.Before(j.CreatedAt) },
	)
	if err != nil {
		return nil, err
	}
	full.Entitlements = lo.Map(ents, func(e *product.Entitlement, _ int) *product.Entitlement {
		return copyProductEntitlement(e)
	})

	prices, err := s.prices.List(ctx, nil,
		func(ctx context.Context, pr *product.Price, _ interface{}) bool {
			return pr.ProductInternalID == p.InternalID && pr.Status != types.StatusDeleted
		},
		func(i, j *product.Price) bool { return i.CreatedAt.Before(j.CreatedAt) },
	)
	if err != nil {
		return nil, err
	}
	full.Prices = lo.Map(prices, func(pr *product.Price, _ int) *product.Price {
		return copyPrice(pr)
	})

	trials, err := s.trials.List(ctx, nil,
		func(ctx context.Context, t *product.FreeTrial, _ interface{}) bool {
			return t.ProductInternalID == p.InternalID && t.Status != types.StatusDeleted
		}, nil)
	if err != nil {
		return nil, err
	}
	if len(trials) > 0 {
		trial := *trials[0]
		full.FreeTrial = &trial
	}

	return full, nil
}

func (s *InMemoryProductStore) ListDefault(ctx context.Context) ([]*product.FullProduct, error) {
	products, err := s.products.List(ctx, nil,
		func(ctx context.Context, p *product.Product, _ interface{}) bool {
			return p.IsDefault && CheckTenantFilter(ctx, p.BaseModel) && p.Status != types.StatusDeleted
		},
		func(i, j *product.Product) bool { return i.CreatedAt.Before(j.CreatedAt) },
	)
	if err != nil {
		return nil, err
	}

	fulls := make([]*product.FullProduct, 0, len(products))
	for _, p := range products {
		full, err := s.loadFull(ctx, copyProduct(p))
		if err != nil {
			return nil, err
		}
		fulls = append(fulls, full)
	}
	return fulls, nil
}

func (s *InMemoryProductStore) ListByGroup(ctx context.Context, group string) ([]*product.Product, error) {
	products, err := s.products.List(ctx, nil,
		func(ctx context.Context, p *product.Product, _ interface{}) bool {
			return p.Group == group && CheckTenantFilter(ctx, p.BaseModel) && p.Status != types.StatusDeleted
		},
		func(i, j *product.Product) bool { return i.CreatedAt.Before(j.CreatedAt) },
	)
	if err != nil {
		return nil, err
	}
	return lo.Map(products, func(p *product.Product, _ int) *product.Product {
		return copyProduct(p)
	}), nil
}

func (s *InMemoryProductStore) Update(ctx context.Context, p *product.Product) error {
	if err := s.products.Update(ctx, p.InternalID, copyProduct(p)); err != nil {
		return ierr.NewError("product not found").
			WithReportableDetails(map[string]any{"internal_id": p.InternalID}).
			Mark(ierr.ErrProductNotFound)
	}
	return nil
}

func (s *InMemoryProductStore) Delete(ctx context.Context, internalID string) error {
	p, err := s.products.Get(ctx, internalID)
	if err != nil {
		return ierr.NewError("product not found").
			WithReportableDetails(map[string]any{"internal_id": internalID}).
			Mark(ierr.ErrProductNotFound)
	}
	deleted := copyProduct(p)
	deleted.Status = types.StatusDeleted
	return s.products.Update(ctx, internalID, deleted)
}

func (s *InMemoryProductStore) CreateEntitlement(ctx context.Context, e *product.Entitlement) error {
	return s.entitlements.Create(ctx, e.InternalID, copyProductEntitlement(e))
}

func (s *InMemoryProductStore) CreatePrice(ctx context.Context, p *product.Price) error {
	return s.prices.Create(ctx, p.InternalID, copyPrice(p))
}

func (s *InMemoryProductStore) UpdatePrice(ctx context.Context, p *product.Price) error {
	if err := s.prices.Update(ctx, p.InternalID, copyPrice(p)); err != nil {
		return ierr.NewError("price not found").
			WithReportableDetails(map[string]any{"internal_id": p.InternalID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryProductStore) CreateFreeTrial(ctx context.Context, t *product.FreeTrial) error {
	trial := *t
	return s.trials.Create(ctx, t.InternalID, &trial)
}

func (s *InMemoryProductStore) Clear() {
	s.products.Clear()
	s.entitlements.Clear()
	s.prices.Clear()
	s.trials.Clear()
}
